package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
	"github.com/ekaya-inc/ekaya-schema/pkg/formula"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
	"github.com/ekaya-inc/ekaya-schema/pkg/repositories"
	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

const identifierRule = "must start with a letter or underscore and contain only lowercase letters, numbers, and underscores"

// SchemaValidationService runs the pre-flight checks for every schema
// change. Checks never modify anything; they may read row counts and the
// physical catalog. A returned error means a check could not run, not that
// the change is invalid.
type SchemaValidationService interface {
	// ValidateCreateTable checks a new table definition before it is
	// materialized.
	ValidateCreateTable(ctx context.Context, schema *models.TableSchema) (*models.ValidationResult, error)

	// ValidateChange checks one change against the current schema.
	ValidateChange(ctx context.Context, schema *models.TableSchema, change models.Change) (*models.ValidationResult, error)

	// ValidateFormula checks the syntax of a {Field} record formula.
	ValidateFormula(schema *models.TableSchema, expr string) *models.ValidationResult

	// Approve validates the change and, when it is valid, returns the
	// single-use approval the builder and migrator require.
	Approve(ctx context.Context, schema *models.TableSchema, change models.Change) (*Approval, *models.ValidationResult, error)
}

type schemaValidationService struct {
	tables   repositories.TableRepository
	columns  repositories.ColumnRepository
	ds       datasource.Datasource
	strategy models.ConversionStrategy
	logger   *zap.Logger
}

// NewSchemaValidationService creates a validator over the physical
// datasource and the engine metadata.
func NewSchemaValidationService(
	tables repositories.TableRepository,
	columns repositories.ColumnRepository,
	ds datasource.Datasource,
	opts SchemaOptions,
	logger *zap.Logger,
) SchemaValidationService {
	opts = opts.withDefaults()
	return &schemaValidationService{
		tables:   tables,
		columns:  columns,
		ds:       ds,
		strategy: opts.DefaultStrategy,
		logger:   logger.Named("schema-validation"),
	}
}

func (s *schemaValidationService) count(ctx context.Context, build func(b *ddl.Builder) (ddl.Statement, error)) (int64, error) {
	stmt, err := build(ddl.NewBuilder(s.ds.Dialect()))
	if err != nil {
		return 0, err
	}
	n, err := datasource.QueryInt64(ctx, s.ds, stmt)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// countInvalid counts the stored values of column that type to rejects.
func (s *schemaValidationService) countInvalid(ctx context.Context, table, column string, from, to coltype.Type) (int64, error) {
	if !coltype.ParsedConversion(from, to) {
		return s.count(ctx, func(b *ddl.Builder) (ddl.Statement, error) {
			return b.CountInvalid(table, column, from, to)
		})
	}
	plan, err := planConversion(ctx, s.ds, ddl.NewBuilder(s.ds.Dialect()), table, column, to)
	if err != nil {
		return 0, err
	}
	return int64(len(plan.invalid)), nil
}

func (s *schemaValidationService) rowCount(ctx context.Context, table string) (int64, error) {
	return s.count(ctx, func(b *ddl.Builder) (ddl.Statement, error) { return b.CountRows(table) })
}

func (s *schemaValidationService) Approve(ctx context.Context, schema *models.TableSchema, change models.Change) (*Approval, *models.ValidationResult, error) {
	var (
		result *models.ValidationResult
		err    error
	)
	if change.Kind == models.ChangeCreateTable {
		result, err = s.ValidateCreateTable(ctx, schema)
	} else {
		result, err = s.ValidateChange(ctx, schema, change)
	}
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid {
		s.logger.Info("Schema change blocked",
			zap.String("table", schema.Table.DatabaseTableName),
			zap.String("kind", string(change.Kind)),
			zap.Strings("errors", result.Errors))
		return nil, result, nil
	}

	approval := newApproval(schema, change, result)
	s.logger.Debug("Schema change approved",
		zap.String("table", schema.Table.DatabaseTableName),
		zap.String("kind", string(change.Kind)),
		zap.String("approval_id", approval.ID().String()))
	return approval, result, nil
}

func (s *schemaValidationService) ValidateChange(ctx context.Context, schema *models.TableSchema, change models.Change) (*models.ValidationResult, error) {
	res := models.NewValidationResult()
	if schema.Table.IsProtected {
		res.AddError("Table '%s' is protected and cannot be modified", schema.Table.DatabaseTableName)
		return res, nil
	}

	switch change.Kind {
	case models.ChangeDropTable:
		return res, s.validateDropTable(ctx, res, schema, change.Force)
	case models.ChangeAddColumn:
		return res, s.validateAddColumn(ctx, res, schema, change.NewColumn)
	case models.ChangeRemoveColumn:
		return res, s.validateRemoveColumn(ctx, res, schema, change.Column)
	case models.ChangeRenameColumn:
		s.validateRenameColumn(res, schema, change.Column, change.NewName)
		return res, nil
	case models.ChangeColumnType:
		return res, s.validateChangeType(ctx, res, schema, change.Column, change.NewType, change.Strategy)
	case models.ChangeNullConstraint:
		return res, s.validateNullConstraint(ctx, res, schema, change.Column, change.Required)
	case models.ChangeDefaultValue:
		s.validateDefault(res, schema, change.Column, change.Default)
		return res, nil
	case models.ChangeRenameChoice, models.ChangeDeleteChoice, models.ChangeMergeChoices:
		return res, s.validateChoiceChange(ctx, res, schema, change)
	case models.ChangeAddComputedColumn:
		s.validateAddComputedColumn(res, schema, change.NewColumn)
		return res, nil
	case models.ChangeUpdateComputedColumn:
		s.validateUpdateComputedColumn(res, schema, change.Column, change.Formula)
		return res, nil
	}
	res.AddError("Unsupported change kind '%s'", change.Kind)
	return res, nil
}

func (s *schemaValidationService) ValidateCreateTable(ctx context.Context, schema *models.TableSchema) (*models.ValidationResult, error) {
	res := models.NewValidationResult()
	name := schema.Table.DatabaseTableName

	switch {
	case name == "":
		res.AddError("Table name cannot be empty")
	case len(name) > sqlutil.MaxIdentifierLength:
		res.AddError("Table name cannot exceed %d characters", sqlutil.MaxIdentifierLength)
	case !sqlutil.IsValidIdentifier(name):
		res.AddError("Table name %s", identifierRule)
	}
	if len(schema.Columns) == 0 {
		res.AddError("Table must have at least one column")
	}

	seen := make(map[string]bool, len(schema.Columns))
	for i := range schema.Columns {
		c := &schema.Columns[i]
		if !validateColumnName(res, c.ColumnName) {
			continue
		}
		if seen[c.ColumnName] {
			res.AddError("Duplicate column name '%s'", c.ColumnName)
			continue
		}
		seen[c.ColumnName] = true
		if !c.LogicalType.Valid() {
			res.AddError("Unknown column type '%s'", c.LogicalType)
			continue
		}
		validateDefaultValue(res, c, c.Default())
	}

	plain := plainColumnNames(schema, "")
	for i := range schema.Columns {
		c := &schema.Columns[i]
		if c.IsComputed() {
			validateComputedFormula(res, *c.ComputedFormula, plain)
		}
	}

	if title := schema.Table.TitleColumn; title != "" && !seen[title] {
		res.AddError("Title column '%s' does not exist", title)
	}

	if res.Valid {
		exists, err := s.ds.TableExists(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check table %s: %w", name, err)
		}
		if exists {
			res.AddError("Table '%s' already exists", name)
		}
	}
	return res, nil
}

func (s *schemaValidationService) validateDropTable(ctx context.Context, res *models.ValidationResult, schema *models.TableSchema, force bool) error {
	table := schema.Table.DatabaseTableName
	if schema.Table.IsLive {
		res.AddError("Table '%s' is live and cannot be dropped", table)
	}

	lookups, err := s.columns.ListLookupsTo(ctx, schema.Table.ID)
	if err != nil {
		return fmt.Errorf("failed to list lookups to %s: %w", table, err)
	}
	for _, l := range lookups {
		owner := l.TableID.String()
		if t, err := s.tables.Get(ctx, l.TableID); err == nil {
			owner = t.DatabaseTableName
		}
		res.AddError("Table '%s' is referenced by lookup column '%s.%s'", table, owner, l.ColumnName)
	}

	exists, err := s.ds.TableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", table, err)
	}
	if !exists {
		res.AddWarning("Table '%s' does not exist in the datasource; only its metadata will be removed", table)
		return nil
	}

	rows, err := s.rowCount(ctx, table)
	if err != nil {
		return err
	}
	if rows > 0 && !force {
		res.AddError("Table '%s' contains %d rows; set force to drop it", table, rows)
		return nil
	}
	res.AddWarning("Dropping table '%s' will permanently delete %d rows", table, rows)
	return nil
}

func (s *schemaValidationService) validateAddColumn(ctx context.Context, res *models.ValidationResult, schema *models.TableSchema, col *models.Column) error {
	if col == nil {
		res.AddError("New column definition is required")
		return nil
	}
	if !validateNewColumn(res, schema, col) {
		return nil
	}
	if col.IsComputed() {
		res.AddError("Use add_computed_column to add computed column '%s'", col.ColumnName)
		return nil
	}
	validateDefaultValue(res, col, col.Default())
	if !col.Required && !col.IsUnique {
		return nil
	}

	rows, err := s.rowCount(ctx, schema.Table.DatabaseTableName)
	if err != nil {
		return err
	}
	if col.Required && col.Default() == "" && rows > 0 {
		res.AddError("Cannot add NOT NULL column without default value to table with %d existing rows", rows)
	}
	if col.IsUnique && col.Default() != "" && rows > 1 {
		res.AddError("Cannot add unique column with a default value to table with %d existing rows", rows)
	}
	return nil
}

func (s *schemaValidationService) validateRemoveColumn(ctx context.Context, res *models.ValidationResult, schema *models.TableSchema, name string) error {
	col, ok := schema.Column(name)
	if !ok {
		res.AddError("Column '%s' does not exist", name)
		return nil
	}
	table := schema.Table.DatabaseTableName

	indexes, err := s.ds.IndexesOnColumn(ctx, table, name)
	if err != nil {
		return fmt.Errorf("failed to list indexes on %s.%s: %w", table, name, err)
	}
	for _, idx := range indexes {
		if !idx.IsPrimary {
			res.AddWarning("Column '%s' is part of index '%s' which will be dropped", name, idx.Name)
		}
	}

	fks, err := s.ds.ForeignKeysReferencing(ctx, table, name)
	if err != nil {
		return fmt.Errorf("failed to list foreign keys to %s.%s: %w", table, name, err)
	}
	for _, fk := range fks {
		res.AddError("Column '%s' is referenced by foreign key from '%s.%s'", name, fk.Table, fk.Column)
	}

	for _, dep := range computedDependents(schema, name) {
		res.AddError("Column '%s' is referenced in formula for column '%s'", name, dep)
	}
	for _, dep := range recordFormulaDependents(schema, col.DisplayName) {
		res.AddWarning("Column '%s' is referenced in formula for column '%s'", name, dep)
	}
	if schema.Table.TitleColumn == name {
		res.AddWarning("Column '%s' is the title column of table '%s'", name, table)
	}

	rows, err := s.rowCount(ctx, table)
	if err != nil {
		return err
	}
	res.AddWarning("Removing column '%s' will permanently delete data in %d rows", name, rows)
	return nil
}

func (s *schemaValidationService) validateRenameColumn(res *models.ValidationResult, schema *models.TableSchema, name, newName string) {
	if _, ok := schema.Column(name); !ok {
		res.AddError("Column '%s' does not exist", name)
		return
	}
	if newName == name {
		res.AddError("New name must differ from the current name")
		return
	}
	if !validateColumnName(res, newName) {
		return
	}
	if _, exists := schema.Column(newName); exists {
		res.AddError("Column '%s' already exists", newName)
		return
	}
	for _, dep := range computedDependents(schema, name) {
		res.AddWarning("Column '%s' is referenced in formula for column '%s'", name, dep)
	}
}

func (s *schemaValidationService) validateChangeType(ctx context.Context, res *models.ValidationResult, schema *models.TableSchema, name string, to coltype.Type, strategy models.ConversionStrategy) error {
	col, ok := schema.Column(name)
	if !ok {
		res.AddError("Column '%s' does not exist", name)
		return nil
	}
	if !to.Valid() {
		res.AddError("Unknown column type '%s'", to)
		return nil
	}
	if strategy == "" {
		strategy = s.strategy
	}
	if !strategy.Valid() {
		res.AddError("Unknown conversion strategy '%s'", strategy)
		return nil
	}
	if col.IsComputed() {
		res.AddError("Cannot change the type of computed column '%s'", name)
		return nil
	}
	from := col.LogicalType
	if from == to {
		res.AddError("Column '%s' is already %s", name, to.Label())
		return nil
	}

	compat := coltype.ConversionDescriptor(from, to)
	if !compat.Compatible {
		res.AddError("Cannot convert from %s to %s: %s", from.Label(), to.Label(), compat.Reason)
		return nil
	}
	for _, dep := range computedDependents(schema, name) {
		res.AddError("Column '%s' is referenced in formula for column '%s'", name, dep)
	}

	table := schema.Table.DatabaseTableName
	if !compat.Safe {
		invalid, err := s.countInvalid(ctx, table, name, from, to)
		if err != nil {
			return err
		}
		switch {
		case invalid > 0 && strategy == models.StrategyClearInvalid:
			res.AddWarning("%d rows contain values that cannot be converted and will be set to NULL", invalid)
		case invalid > 0:
			res.AddError("%d rows contain values that cannot be converted", invalid)
		case compat.MayLoseData:
			res.AddWarning("Converting from %s to %s may lose data", from.Label(), to.Label())
		}
		if invalid > 0 && col.Required && strategy == models.StrategyClearInvalid {
			res.AddError("Column '%s' is required, so invalid values cannot be cleared", name)
		}
	}

	if !coltype.IndexCompatible(from, to) {
		indexes, err := s.ds.IndexesOnColumn(ctx, table, name)
		if err != nil {
			return fmt.Errorf("failed to list indexes on %s.%s: %w", table, name, err)
		}
		if len(indexes) > 0 || columnDef(col).Indexed() {
			res.AddWarning("Indexes on column '%s' will be rebuilt", name)
		}
	}
	return nil
}

func (s *schemaValidationService) validateNullConstraint(ctx context.Context, res *models.ValidationResult, schema *models.TableSchema, name string, required *bool) error {
	col, ok := schema.Column(name)
	if !ok {
		res.AddError("Column '%s' does not exist", name)
		return nil
	}
	if required == nil {
		res.AddError("Required flag must be specified")
		return nil
	}
	if col.IsComputed() {
		res.AddError("Cannot change the null constraint of computed column '%s'", name)
		return nil
	}
	if !*required || col.Required {
		return nil
	}

	nulls, err := s.count(ctx, func(b *ddl.Builder) (ddl.Statement, error) {
		return b.CountNulls(schema.Table.DatabaseTableName, name)
	})
	if err != nil {
		return err
	}
	if nulls > 0 {
		res.AddError("Cannot set NOT NULL: %d rows have NULL values", nulls)
	}
	return nil
}

func (s *schemaValidationService) validateDefault(res *models.ValidationResult, schema *models.TableSchema, name string, value *string) {
	col, ok := schema.Column(name)
	if !ok {
		res.AddError("Column '%s' does not exist", name)
		return
	}
	if col.IsComputed() {
		res.AddError("Computed column '%s' cannot have a default value", name)
		return
	}
	if value == nil || *value == "" {
		return
	}
	validateDefaultValue(res, col, *value)
}

func (s *schemaValidationService) validateChoiceChange(ctx context.Context, res *models.ValidationResult, schema *models.TableSchema, change models.Change) error {
	col, ok := schema.Column(change.Column)
	if !ok {
		res.AddError("Column '%s' does not exist", change.Column)
		return nil
	}
	if !col.LogicalType.IsText() {
		res.AddError("Choice operations require a text column, '%s' is %s", col.ColumnName, col.LogicalType.Label())
		return nil
	}

	var matched []string
	switch change.Kind {
	case models.ChangeRenameChoice:
		if change.OldValue == "" {
			res.AddError("Old value cannot be empty")
		}
		if change.NewValue == "" {
			res.AddError("New value cannot be empty")
		} else if change.NewValue == change.OldValue {
			res.AddError("New value must differ from the old value")
		}
		validateChoiceValue(res, col, change.NewValue)
		matched = []string{change.OldValue}
	case models.ChangeDeleteChoice:
		if change.OldValue == "" {
			res.AddError("Value to delete cannot be empty")
		}
		if change.Replacement != nil {
			validateChoiceValue(res, col, *change.Replacement)
		}
		matched = []string{change.OldValue}
	case models.ChangeMergeChoices:
		if len(change.Sources) == 0 {
			res.AddError("At least one source value is required")
		}
		if change.Target == "" {
			res.AddError("Target value cannot be empty")
		}
		validateChoiceValue(res, col, change.Target)
		matched = change.Sources
	}
	if !res.Valid {
		return nil
	}

	rows, err := s.count(ctx, func(b *ddl.Builder) (ddl.Statement, error) {
		return b.CountValues(schema.Table.DatabaseTableName, col.ColumnName, matched)
	})
	if err != nil {
		return err
	}

	switch change.Kind {
	case models.ChangeRenameChoice:
		if rows == 0 {
			res.AddWarning("No rows contain '%s'", change.OldValue)
		}
	case models.ChangeDeleteChoice:
		if change.Replacement != nil {
			res.AddWarning("Deleting '%s' will replace it with '%s' in %d rows", change.OldValue, *change.Replacement, rows)
		} else {
			res.AddWarning("Deleting '%s' will clear it in %d rows", change.OldValue, rows)
			if col.Required && rows > 0 {
				res.AddError("Cannot clear '%s': column '%s' is required", change.OldValue, col.ColumnName)
			}
		}
	case models.ChangeMergeChoices:
		res.AddWarning("%d rows will be merged into '%s'", rows, change.Target)
	}
	return nil
}

func (s *schemaValidationService) validateAddComputedColumn(res *models.ValidationResult, schema *models.TableSchema, col *models.Column) {
	if col == nil {
		res.AddError("New column definition is required")
		return
	}
	if !col.IsComputed() {
		res.AddError("Formula cannot be empty")
		return
	}
	if !validateNewColumn(res, schema, col) {
		return
	}
	if col.LogicalType == coltype.Lookup || col.LogicalType == coltype.Boolean {
		res.AddError("Computed columns cannot be %s columns", col.LogicalType.Label())
		return
	}
	validateComputedFormula(res, *col.ComputedFormula, plainColumnNames(schema, ""))
}

func (s *schemaValidationService) validateUpdateComputedColumn(res *models.ValidationResult, schema *models.TableSchema, name, expr string) {
	col, ok := schema.Column(name)
	if !ok {
		res.AddError("Column '%s' does not exist", name)
		return
	}
	if !col.IsComputed() {
		res.AddError("Column '%s' is not a computed column", name)
		return
	}
	if strings.TrimSpace(expr) == "" {
		res.AddError("Formula cannot be empty")
		return
	}
	validateComputedFormula(res, expr, plainColumnNames(schema, name))
	if res.Valid {
		res.AddWarning("Column '%s' will be dropped and recreated", name)
	}
}

func (s *schemaValidationService) ValidateFormula(schema *models.TableSchema, expr string) *models.ValidationResult {
	res := models.NewValidationResult()
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		res.AddError("Formula cannot be empty")
		return res
	}
	if !strings.HasPrefix(trimmed, "=") {
		res.AddError("Formula must start with '='")
	}

	for _, ref := range formula.FieldRefs(trimmed) {
		if _, ok := schema.ColumnByDisplayName(ref); !ok {
			res.AddError("Formula references unknown field '%s'", ref)
		}
	}

	tokens := formula.Tokenize(strings.TrimPrefix(trimmed, "="))
	depth := 0
	for _, tok := range tokens {
		switch tok.Type {
		case formula.LPAREN:
			depth++
		case formula.RPAREN:
			depth--
		}
		if depth < 0 {
			break
		}
	}
	if depth != 0 {
		res.AddError("Formula has unbalanced parentheses")
	}
	if n := len(tokens); n >= 2 && tokens[n-1].Type == formula.EOF && tokens[n-2].Type.IsBinaryOperator() {
		res.AddError("Formula cannot end with operator")
	}

	if res.Valid {
		if _, err := formula.Parse(trimmed); err != nil {
			res.AddError("Invalid formula: %s", err.Error())
		}
	}
	return res
}

// validateColumnName reports whether name is usable as a user column.
func validateColumnName(res *models.ValidationResult, name string) bool {
	switch {
	case name == "":
		res.AddError("Column name cannot be empty")
	case sqlutil.ReservedColumnNames[name]:
		res.AddError("Column name '%s' is reserved", name)
	case len(name) > sqlutil.MaxIdentifierLength:
		res.AddError("Column name cannot exceed %d characters", sqlutil.MaxIdentifierLength)
	case !sqlutil.IsValidIdentifier(name):
		res.AddError("Column name %s", identifierRule)
	default:
		return true
	}
	return false
}

func validateNewColumn(res *models.ValidationResult, schema *models.TableSchema, col *models.Column) bool {
	if !validateColumnName(res, col.ColumnName) {
		return false
	}
	if _, exists := schema.Column(col.ColumnName); exists {
		res.AddError("Column '%s' already exists", col.ColumnName)
		return false
	}
	if !col.LogicalType.Valid() {
		res.AddError("Unknown column type '%s'", col.LogicalType)
		return false
	}
	return true
}

func validateDefaultValue(res *models.ValidationResult, col *models.Column, value string) {
	if value == "" {
		return
	}
	if !coltype.Convertible(value, col.LogicalType) {
		res.AddError("Default value '%s' is not a valid %s", value, col.LogicalType.Label())
		return
	}
	if err := sqlutil.CheckLiteral("default_value", value); err != nil {
		res.AddError("Default value '%s' contains a disallowed SQL pattern", value)
	}
}

func validateChoiceValue(res *models.ValidationResult, col *models.Column, value string) {
	if value == "" {
		return
	}
	limit := 0
	if col.MaxLength != nil {
		limit = *col.MaxLength
	} else if st, err := coltype.PhysicalTypeFor(col.LogicalType); err == nil {
		limit = st.Length
	}
	if limit > 0 && len([]rune(value)) > limit {
		res.AddError("Value '%s' exceeds the maximum length of %d characters", value, limit)
	}
	if err := sqlutil.CheckLiteral("choice_value", value); err != nil {
		res.AddError("Value '%s' contains a disallowed SQL pattern", value)
	}
}

func validateComputedFormula(res *models.ValidationResult, expr string, columns []string) {
	allowed := make(map[string]bool, len(columns))
	for _, c := range columns {
		allowed[c] = true
	}
	if _, err := formula.ParseComputed(expr, allowed); err != nil {
		res.AddError("Invalid formula: %s", err.Error())
	}
}

// plainColumnNames lists the non-computed columns a computed formula may
// reference, leaving out exclude.
func plainColumnNames(schema *models.TableSchema, exclude string) []string {
	var out []string
	for _, c := range schema.Columns {
		if c.ColumnName != exclude && !c.IsComputed() {
			out = append(out, c.ColumnName)
		}
	}
	return out
}

// computedDependents returns the computed columns whose formula references column.
func computedDependents(schema *models.TableSchema, column string) []string {
	var out []string
	for _, c := range schema.Columns {
		if c.ColumnName == column || !c.IsComputed() {
			continue
		}
		node, err := formula.Parse(*c.ComputedFormula)
		if err != nil {
			continue
		}
		for _, ref := range formula.ColumnRefs(node) {
			if ref == column {
				out = append(out, c.ColumnName)
				break
			}
		}
	}
	return out
}

// recordFormulaDependents returns the columns whose record formula uses the
// display name.
func recordFormulaDependents(schema *models.TableSchema, displayName string) []string {
	var out []string
	for _, c := range schema.Columns {
		if c.Formula == nil || c.DisplayName == displayName {
			continue
		}
		for _, ref := range formula.FieldRefs(*c.Formula) {
			if strings.EqualFold(ref, displayName) {
				out = append(out, c.ColumnName)
				break
			}
		}
	}
	return out
}

var _ SchemaValidationService = (*schemaValidationService)(nil)
