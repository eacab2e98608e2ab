package config

import (
	"testing"

	"github.com/fmsync/fmsync/internal/core"
)

func TestParseAppliesDefaults(t *testing.T) {
	doc := []byte(`{
		"object_type": "layout",
		"database": "Sales",
		"layout_name": "Orders",
		"loading_options": {"incremental": 1, "pkey": ["Id"], "incremental_fetch": true}
	}`)

	cfg, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.PageSize != DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", cfg.PageSize, DefaultPageSize)
	}
	if got := cfg.IncrementalField(); got != DefaultIncrementalField {
		t.Errorf("IncrementalField = %q, want %q", got, DefaultIncrementalField)
	}
}

func TestParseRejectsMalformedDocument(t *testing.T) {
	if _, err := Parse([]byte(`{"object_type": `)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     QueryConfig
		wantErr bool
	}{
		{
			name: "layout ok",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				Database:   "Sales",
				LayoutName: "Orders",
			},
		},
		{
			name: "layout missing database",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				LayoutName: "Orders",
			},
			wantErr: true,
		},
		{
			name: "layout missing layout_name",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				Database:   "Sales",
			},
			wantErr: true,
		},
		{
			name: "layout with field_metadata",
			cfg: QueryConfig{
				ObjectType:    ObjectTypeLayout,
				Database:      "Sales",
				LayoutName:    "Orders",
				FieldMetadata: []LayoutRef{{Database: "Sales", LayoutName: "Orders"}},
			},
			wantErr: true,
		},
		{
			name: "metadata ok with empty field_metadata",
			cfg: QueryConfig{
				ObjectType: ObjectTypeMetadata,
			},
		},
		{
			name: "metadata with layout target",
			cfg: QueryConfig{
				ObjectType: ObjectTypeMetadata,
				Database:   "Sales",
				LayoutName: "Orders",
			},
			wantErr: true,
		},
		{
			name: "metadata with incomplete ref",
			cfg: QueryConfig{
				ObjectType:    ObjectTypeMetadata,
				FieldMetadata: []LayoutRef{{Database: "Sales"}},
			},
			wantErr: true,
		},
		{
			name: "incremental requires pkey",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				Database:   "Sales",
				LayoutName: "Orders",
				LoadingOptions: LoadingOptions{
					Incremental: 1,
				},
			},
			wantErr: true,
		},
		{
			name: "incremental_fetch requires incremental",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				Database:   "Sales",
				LayoutName: "Orders",
				LoadingOptions: LoadingOptions{
					IncrementalFetch:  true,
					IncrementalFields: []string{"_Timestamp_Modified"},
				},
			},
			wantErr: true,
		},
		{
			name: "incremental upsert ok",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				Database:   "Sales",
				LayoutName: "Orders",
				LoadingOptions: LoadingOptions{
					Incremental:       1,
					Pkey:              []string{"Id"},
					IncrementalFetch:  true,
					IncrementalFields: []string{"_Timestamp_Modified"},
				},
			},
		},
		{
			name: "more than one incremental field",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				Database:   "Sales",
				LayoutName: "Orders",
				LoadingOptions: LoadingOptions{
					Incremental:       1,
					Pkey:              []string{"Id"},
					IncrementalFetch:  true,
					IncrementalFields: []string{"A", "B"},
				},
			},
			wantErr: true,
		},
		{
			name: "duplicate field within group",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				Database:   "Sales",
				LayoutName: "Orders",
				QueryGroups: []QueryGroup{
					{
						{FieldName: "Status", FindCriteria: "open"},
						{FieldName: "Status", FindCriteria: "closed"},
					},
				},
			},
			wantErr: true,
		},
		{
			name: "same field in different groups",
			cfg: QueryConfig{
				ObjectType: ObjectTypeLayout,
				Database:   "Sales",
				LayoutName: "Orders",
				QueryGroups: []QueryGroup{
					{{FieldName: "Status", FindCriteria: "open"}},
					{{FieldName: "Status", FindCriteria: "closed"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err != nil && !core.HasCode(err, core.CodeConfigInvalid) {
				t.Errorf("error code mismatch: %v", err)
			}
		})
	}
}
