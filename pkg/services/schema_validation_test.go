package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
)

func TestSchemaValidation_AddColumn(t *testing.T) {
	tests := []struct {
		name     string
		column   models.Column
		rows     int64
		wantErr  string
		wantPass bool
	}{
		{
			name:    "required without default on populated table",
			column:  models.Column{ColumnName: "sku", LogicalType: coltype.SingleLineText, Required: true},
			rows:    5,
			wantErr: "Cannot add NOT NULL column without default value to table with 5 existing rows",
		},
		{
			name:     "required without default on empty table",
			column:   models.Column{ColumnName: "sku", LogicalType: coltype.SingleLineText, Required: true},
			rows:     0,
			wantPass: true,
		},
		{
			name:     "required with default",
			column:   models.Column{ColumnName: "sku", LogicalType: coltype.SingleLineText, Required: true, DefaultValue: strPtr("n/a")},
			rows:     5,
			wantPass: true,
		},
		{
			name:    "reserved name",
			column:  models.Column{ColumnName: "id", LogicalType: coltype.WholeNumber},
			wantErr: "Column name 'id' is reserved",
		},
		{
			name:    "duplicate name",
			column:  models.Column{ColumnName: "price", LogicalType: coltype.Number},
			wantErr: "Column 'price' already exists",
		},
		{
			name:    "invalid identifier",
			column:  models.Column{ColumnName: "Bad Name", LogicalType: coltype.Number},
			wantErr: "Column name " + identifierRule,
		},
		{
			name:    "default of the wrong type",
			column:  models.Column{ColumnName: "rating", LogicalType: coltype.WholeNumber, DefaultValue: strPtr("abc")},
			wantErr: "Default value 'abc' is not a valid Whole number",
		},
		{
			name:    "unique with default on populated table",
			column:  models.Column{ColumnName: "code", LogicalType: coltype.SingleLineText, IsUnique: true, DefaultValue: strPtr("x")},
			rows:    3,
			wantErr: "Cannot add unique column with a default value to table with 3 existing rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.ds.queryFn = tableCounts{rows: tt.rows}.queryFn
			col := tt.column

			res, err := env.validator.ValidateChange(context.Background(), env.current(t), models.Change{
				Kind:      models.ChangeAddColumn,
				NewColumn: &col,
			})
			require.NoError(t, err)
			if tt.wantPass {
				assert.True(t, res.Valid, "errors: %v", res.Errors)
				return
			}
			assert.False(t, res.Valid)
			assert.Contains(t, res.Errors, tt.wantErr)
		})
	}
}

func TestSchemaValidation_ChangeType_Strategies(t *testing.T) {
	env := newTestEnv(t)
	env.ds.queryFn = tableCounts{rows: 10}.withValues("status", "4", "n/a", "7", "", "2024-02-30", "1000000000")
	schema := env.current(t)

	cleared, err := env.validator.ValidateChange(context.Background(), schema, models.Change{
		Kind:     models.ChangeColumnType,
		Column:   "status",
		NewType:  coltype.WholeNumber,
		Strategy: models.StrategyClearInvalid,
	})
	require.NoError(t, err)
	assert.True(t, cleared.Valid, "errors: %v", cleared.Errors)
	assert.Contains(t, cleared.Warnings, "2 rows contain values that cannot be converted and will be set to NULL")

	fail, err := env.validator.ValidateChange(context.Background(), schema, models.Change{
		Kind:     models.ChangeColumnType,
		Column:   "status",
		NewType:  coltype.WholeNumber,
		Strategy: models.StrategyFailOnInvalid,
	})
	require.NoError(t, err)
	assert.False(t, fail.Valid)
	assert.Contains(t, fail.Errors, "2 rows contain values that cannot be converted")
}

func TestSchemaValidation_ChangeType_Rejections(t *testing.T) {
	env := newTestEnv(t)
	schema := env.current(t)

	tests := []struct {
		name    string
		change  models.Change
		wantErr string
	}{
		{
			name:    "incompatible types",
			change:  models.Change{Kind: models.ChangeColumnType, Column: "name", NewType: coltype.Lookup},
			wantErr: "Cannot convert from Single line text to Lookup: cannot convert Single line text to Lookup",
		},
		{
			name:    "same type",
			change:  models.Change{Kind: models.ChangeColumnType, Column: "price", NewType: coltype.Number},
			wantErr: "Column 'price' is already Number",
		},
		{
			name:    "missing column",
			change:  models.Change{Kind: models.ChangeColumnType, Column: "nope", NewType: coltype.Number},
			wantErr: "Column 'nope' does not exist",
		},
		{
			name:    "referenced by a computed column",
			change:  models.Change{Kind: models.ChangeColumnType, Column: "qty", NewType: coltype.SingleLineText},
			wantErr: "Column 'qty' is referenced in formula for column 'total'",
		},
		{
			name:    "computed column itself",
			change:  models.Change{Kind: models.ChangeColumnType, Column: "total", NewType: coltype.SingleLineText},
			wantErr: "Cannot change the type of computed column 'total'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.validator.ValidateChange(context.Background(), schema, tt.change)
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.Contains(t, res.Errors, tt.wantErr)
		})
	}
}

func TestSchemaValidation_ChangeType_IndexRebuildWarning(t *testing.T) {
	env := newTestEnv(t)
	env.ds.indexes = []datasource.Index{{Name: "idx_products_status"}}

	res, err := env.validator.ValidateChange(context.Background(), env.current(t), models.Change{
		Kind:    models.ChangeColumnType,
		Column:  "status",
		NewType: coltype.Number,
	})
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Contains(t, res.Warnings, "Indexes on column 'status' will be rebuilt")
}

func TestSchemaValidation_RemoveColumn(t *testing.T) {
	env := newTestEnv(t)
	env.ds.queryFn = tableCounts{rows: 7}.queryFn
	env.ds.indexes = []datasource.Index{{Name: "products_pkey", IsPrimary: true}, {Name: "idx_products_price"}}
	schema := env.current(t)

	res, err := env.validator.ValidateChange(context.Background(), schema, models.Change{Kind: models.ChangeRemoveColumn, Column: "price"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "Column 'price' is referenced in formula for column 'total'")
	assert.Contains(t, res.Warnings, "Column 'price' is part of index 'idx_products_price' which will be dropped")
	assert.Contains(t, res.Warnings, "Removing column 'price' will permanently delete data in 7 rows")

	res, err = env.validator.ValidateChange(context.Background(), schema, models.Change{Kind: models.ChangeRemoveColumn, Column: "status"})
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)

	env.ds.fks = []datasource.ForeignKey{{Name: "fk_orders_status", Table: "orders", Column: "product_status"}}
	res, err = env.validator.ValidateChange(context.Background(), schema, models.Change{Kind: models.ChangeRemoveColumn, Column: "status"})
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Column 'status' is referenced by foreign key from 'orders.product_status'")
}

func TestSchemaValidation_NullConstraint(t *testing.T) {
	env := newTestEnv(t)
	env.ds.queryFn = tableCounts{rows: 10, nulls: 4}.queryFn
	schema := env.current(t)

	res, err := env.validator.ValidateChange(context.Background(), schema, models.Change{
		Kind: models.ChangeNullConstraint, Column: "status", Required: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Cannot set NOT NULL: 4 rows have NULL values")

	res, err = env.validator.ValidateChange(context.Background(), schema, models.Change{
		Kind: models.ChangeNullConstraint, Column: "name", Required: boolPtr(false),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestSchemaValidation_Choices(t *testing.T) {
	env := newTestEnv(t)
	env.ds.queryFn = tableCounts{rows: 10, values: 3}.queryFn
	schema := env.current(t)
	ctx := context.Background()

	res, err := env.validator.ValidateChange(ctx, schema, models.Change{
		Kind: models.ChangeMergeChoices, Column: "status", Sources: []string{"open", "Open"}, Target: "OPEN",
	})
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Contains(t, res.Warnings, "3 rows will be merged into 'OPEN'")

	res, err = env.validator.ValidateChange(ctx, schema, models.Change{
		Kind: models.ChangeRenameChoice, Column: "price", OldValue: "1", NewValue: "2",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Choice operations require a text column, 'price' is Number")

	res, err = env.validator.ValidateChange(ctx, schema, models.Change{
		Kind: models.ChangeDeleteChoice, Column: "name", OldValue: "widget",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Cannot clear 'widget': column 'name' is required")

	res, err = env.validator.ValidateChange(ctx, schema, models.Change{
		Kind: models.ChangeRenameChoice, Column: "status", OldValue: "open", NewValue: "x'; DROP TABLE t--",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Value 'x'; DROP TABLE t--' contains a disallowed SQL pattern")
}

func TestSchemaValidation_DropTable(t *testing.T) {
	env := newTestEnv(t)
	env.ds.queryFn = tableCounts{rows: 12}.queryFn
	ctx := context.Background()

	res, err := env.validator.ValidateChange(ctx, env.current(t), models.Change{Kind: models.ChangeDropTable})
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Table 'products' contains 12 rows; set force to drop it")

	res, err = env.validator.ValidateChange(ctx, env.current(t), models.Change{Kind: models.ChangeDropTable, Force: true})
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Contains(t, res.Warnings, "Dropping table 'products' will permanently delete 12 rows")

	orders := &models.TableSchema{Table: models.Table{DatabaseTableName: "orders"}, Columns: []models.Column{
		{ColumnName: "product", LogicalType: coltype.Lookup, LookupTableID: &env.table.Table.ID},
	}}
	PrepareTableSchema(orders)
	require.NoError(t, env.tables.Create(ctx, &orders.Table))
	require.NoError(t, env.columns.Create(ctx, &orders.Columns[0]))

	res, err = env.validator.ValidateChange(ctx, env.current(t), models.Change{Kind: models.ChangeDropTable, Force: true})
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Table 'products' is referenced by lookup column 'orders.product'")
}

func TestSchemaValidation_ProtectedTable(t *testing.T) {
	env := newTestEnv(t)
	schema := env.current(t)
	schema.Table.IsProtected = true

	res, err := env.validator.ValidateChange(context.Background(), schema, models.Change{Kind: models.ChangeRenameColumn, Column: "status", NewName: "state"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Table 'products' is protected and cannot be modified"}, res.Errors)
}

func TestSchemaValidation_RenameColumn(t *testing.T) {
	env := newTestEnv(t)
	schema := env.current(t)

	res, err := env.validator.ValidateChange(context.Background(), schema, models.Change{Kind: models.ChangeRenameColumn, Column: "price", NewName: "unit_price"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Contains(t, res.Warnings, "Column 'price' is referenced in formula for column 'total'")

	res, err = env.validator.ValidateChange(context.Background(), schema, models.Change{Kind: models.ChangeRenameColumn, Column: "price", NewName: "qty"})
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Column 'qty' already exists")
}

func TestSchemaValidation_ComputedColumns(t *testing.T) {
	env := newTestEnv(t)
	schema := env.current(t)
	ctx := context.Background()

	res, err := env.validator.ValidateChange(ctx, schema, models.Change{
		Kind:      models.ChangeAddComputedColumn,
		NewColumn: &models.Column{ColumnName: "discounted", LogicalType: coltype.Number, ComputedFormula: strPtr("[price] * 0.9")},
	})
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)

	res, err = env.validator.ValidateChange(ctx, schema, models.Change{
		Kind:      models.ChangeAddComputedColumn,
		NewColumn: &models.Column{ColumnName: "bad", LogicalType: coltype.Number, ComputedFormula: strPtr("[missing] + 1")},
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)

	res, err = env.validator.ValidateChange(ctx, schema, models.Change{
		Kind: models.ChangeUpdateComputedColumn, Column: "total", Formula: "[price] * [qty] * 2",
	})
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Contains(t, res.Warnings, "Column 'total' will be dropped and recreated")

	res, err = env.validator.ValidateChange(ctx, schema, models.Change{
		Kind: models.ChangeUpdateComputedColumn, Column: "total", Formula: "[total] + 1",
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestSchemaValidation_ValidateFormula(t *testing.T) {
	env := newTestEnv(t)
	schema := env.current(t)

	tests := []struct {
		expr    string
		wantErr string
	}{
		{"={Price} * {Qty}", ""},
		{"", "Formula cannot be empty"},
		{"{Price} * 2", "Formula must start with '='"},
		{"={Price} *", "Formula cannot end with operator"},
		{"=({Price} * 2", "Formula has unbalanced parentheses"},
		{"={Weight} * 2", "Formula references unknown field 'Weight'"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			res := env.validator.ValidateFormula(schema, tt.expr)
			if tt.wantErr == "" {
				assert.True(t, res.Valid, "errors: %v", res.Errors)
				return
			}
			assert.Contains(t, res.Errors, tt.wantErr)
		})
	}
}

func TestSchemaValidation_CreateTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	schema := &models.TableSchema{
		Table: models.Table{DatabaseTableName: "orders", TitleColumn: "number"},
		Columns: []models.Column{
			{ColumnName: "number", LogicalType: coltype.SingleLineText},
			{ColumnName: "amount", LogicalType: coltype.Currency},
		},
	}
	env.ds.exists = false
	res, err := env.validator.ValidateCreateTable(ctx, schema)
	require.NoError(t, err)
	assert.True(t, res.Valid, "errors: %v", res.Errors)

	env.ds.exists = true
	res, err = env.validator.ValidateCreateTable(ctx, schema)
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Table 'orders' already exists")

	bad := &models.TableSchema{
		Table: models.Table{DatabaseTableName: "9lives", TitleColumn: "missing"},
		Columns: []models.Column{
			{ColumnName: "a", LogicalType: coltype.Number},
			{ColumnName: "a", LogicalType: coltype.Number},
		},
	}
	res, err = env.validator.ValidateCreateTable(ctx, bad)
	require.NoError(t, err)
	assert.Contains(t, res.Errors, "Table name "+identifierRule)
	assert.Contains(t, res.Errors, "Duplicate column name 'a'")
	assert.Contains(t, res.Errors, "Title column 'missing' does not exist")
}

func TestSchemaValidation_ApproveBlocked(t *testing.T) {
	env := newTestEnv(t)

	approval, res, err := env.validator.Approve(context.Background(), env.current(t), models.Change{
		Kind: models.ChangeRenameColumn, Column: "nope", NewName: "other",
	})
	require.NoError(t, err)
	assert.Nil(t, approval)
	assert.False(t, res.Valid)
}
