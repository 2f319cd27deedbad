package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-schema/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-schema/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-schema/pkg/coltype"
	"github.com/ekaya-inc/ekaya-schema/pkg/ddl"
	"github.com/ekaya-inc/ekaya-schema/pkg/logging"
	"github.com/ekaya-inc/ekaya-schema/pkg/models"
	"github.com/ekaya-inc/ekaya-schema/pkg/retry"
	sqlutil "github.com/ekaya-inc/ekaya-schema/pkg/sql"
)

const defaultImportTableName = "imported_records"

// ConvertedRows are import rows typed for insertion. Rows[i] holds one value
// per entry of Columns and came from input row Source[i] (1-based).
type ConvertedRows struct {
	Columns []string
	Rows    [][]any
	Source  []int
}

// ImportService turns spreadsheet-style rows into typed inserts.
type ImportService interface {
	// DetectType scores sample values against the type catalog.
	DetectType(values []string) coltype.Detection

	// Analyze proposes a table for headers and rows: a column and a detected
	// type per header plus a table name derived from fileName.
	Analyze(fileName string, headers []string, rows [][]string) *models.ImportAnalysis

	// ConvertRows maps headers onto schema columns and converts every cell.
	// Rows with a bad cell are reported and left out; they never stop the
	// conversion of the other rows.
	ConvertRows(schema *models.TableSchema, headers []string, rows [][]string) (*ConvertedRows, []models.FailedRow, error)

	// Import converts rows and inserts them in batches.
	Import(ctx context.Context, tableID uuid.UUID, headers []string, rows [][]string) (*models.ImportResult, error)
}

type importService struct {
	registry   SchemaRegistry
	ds         datasource.Datasource
	batchSize  int
	sampleSize int
	retry      *retry.Config
	logger     *zap.Logger
}

// NewImportService creates an ImportService.
func NewImportService(registry SchemaRegistry, ds datasource.Datasource, opts SchemaOptions, logger *zap.Logger) ImportService {
	opts = opts.withDefaults()
	return &importService{
		registry:   registry,
		ds:         ds,
		batchSize:  opts.ImportBatchSize,
		sampleSize: opts.DetectionSampleSize,
		retry:      retry.WithMaxRetries(opts.MigrationRetries),
		logger:     logger.Named("import"),
	}
}

func (s *importService) DetectType(values []string) coltype.Detection {
	return coltype.Detect(s.samples(values))
}

// samples returns up to sampleSize non-blank values.
func (s *importService) samples(values []string) []string {
	out := make([]string, 0, s.sampleSize)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, v)
		if len(out) == s.sampleSize {
			break
		}
	}
	return out
}

func (s *importService) Analyze(fileName string, headers []string, rows [][]string) *models.ImportAnalysis {
	tableName := defaultImportTableName
	if strings.TrimSpace(fileName) != "" {
		tableName = models.DatabaseTableName(fileName)
	}
	analysis := &models.ImportAnalysis{
		SuggestedTableName: tableName,
		SuggestedTitle:     models.TableTitle(tableName),
		Columns:            make([]models.ImportColumn, 0, len(headers)),
		RowCount:           len(rows),
	}

	used := make(map[string]bool, len(headers))
	for i, header := range headers {
		values := make([]string, len(rows))
		maxLen := 0
		for j, row := range rows {
			if i < len(row) {
				values[j] = row[i]
				if n := utf8.RuneCountInString(row[i]); n > maxLen {
					maxLen = n
				}
			}
		}
		detection := s.DetectType(values)
		analysis.Columns = append(analysis.Columns, models.ImportColumn{
			Header:      header,
			ColumnName:  uniqueColumnName(header, used),
			LogicalType: detection.Type,
			Confidence:  detection.Confidence,
			MaxLength:   maxLen,
		})
	}
	return analysis
}

// uniqueColumnName derives a column name from a header that is neither
// reserved nor already taken.
func uniqueColumnName(header string, used map[string]bool) string {
	base := sqlutil.ColumnNameFromLabel(header)
	name := base
	for n := 2; used[name] || sqlutil.ReservedColumnNames[name]; n++ {
		suffix := "_" + strconv.Itoa(n)
		name = sqlutil.TruncateIdentifier(base[:min(len(base), sqlutil.MaxIdentifierLength-len(suffix))] + suffix)
	}
	used[name] = true
	return name
}

type importTarget struct {
	index int
	col   *models.Column
}

func (s *importService) ConvertRows(schema *models.TableSchema, headers []string, rows [][]string) (*ConvertedRows, []models.FailedRow, error) {
	var targets []importTarget
	mapped := make(map[string]bool)
	for i, h := range headers {
		col, ok := schema.ColumnByDisplayName(h)
		if !ok {
			col, ok = schema.Column(sqlutil.ColumnNameFromLabel(h))
		}
		if !ok || col.IsComputed() || mapped[col.ColumnName] {
			s.logger.Debug("Skipping import header", zap.String("header", logging.SanitizeValue(h)))
			continue
		}
		mapped[col.ColumnName] = true
		targets = append(targets, importTarget{index: i, col: col})
	}
	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("%w: no header matches a column of %s", apperrors.ErrValidationFailed, schema.Table.DatabaseTableName)
	}
	for i := range schema.Columns {
		c := &schema.Columns[i]
		if c.Required && !mapped[c.ColumnName] && c.Default() == "" && !c.IsComputed() {
			return nil, nil, fmt.Errorf("%w: required column %s has no matching header", apperrors.ErrValidationFailed, c.ColumnName)
		}
	}

	out := &ConvertedRows{Columns: make([]string, len(targets))}
	for i, t := range targets {
		out.Columns[i] = t.col.ColumnName
	}

	var failed []models.FailedRow
	for r, row := range rows {
		values, problem := convertRow(row, targets)
		if problem != nil {
			problem.Row = r + 1
			failed = append(failed, *problem)
			continue
		}
		out.Rows = append(out.Rows, values)
		out.Source = append(out.Source, r+1)
	}
	return out, failed, nil
}

func convertRow(row []string, targets []importTarget) ([]any, *models.FailedRow) {
	values := make([]any, len(targets))
	for i, t := range targets {
		raw := ""
		if t.index < len(row) {
			raw = row[t.index]
		}
		if strings.TrimSpace(raw) == "" && t.col.Default() != "" {
			raw = t.col.Default()
		}

		v, err := coltype.Convert(raw, t.col.LogicalType)
		if err != nil {
			return nil, &models.FailedRow{Column: t.col.ColumnName, Value: logging.SanitizeValue(raw), Reason: err.Error()}
		}
		if v.Null {
			if t.col.Required {
				return nil, &models.FailedRow{Column: t.col.ColumnName, Reason: "value is required"}
			}
			values[i] = nil
			continue
		}
		values[i] = v.Value
	}
	return values, nil
}

func (s *importService) Import(ctx context.Context, tableID uuid.UUID, headers []string, rows [][]string) (*models.ImportResult, error) {
	schema, err := s.registry.Get(ctx, tableID)
	if err != nil {
		return nil, err
	}
	converted, failed, err := s.ConvertRows(schema, headers, rows)
	if err != nil {
		return nil, err
	}

	table := schema.Table.DatabaseTableName
	b := ddl.NewBuilder(s.ds.Dialect())
	batch := s.batchSize
	if limit := b.Dialect().MaxParameters() / len(converted.Columns); batch > limit {
		batch = max(limit, 1)
	}

	result := &models.ImportResult{}
	for start := 0; start < len(converted.Rows); start += batch {
		if err := ctx.Err(); err != nil {
			return s.finish(table, result, failed), err
		}
		end := min(start+batch, len(converted.Rows))

		stmt, err := b.Insert(table, converted.Columns, converted.Rows[start:end])
		if err == nil {
			err = retry.DoIfRetryable(ctx, s.retry, func() error {
				return datasource.WithTransaction(ctx, s.ds, func(r datasource.Runner) error {
					_, err := datasource.Run(ctx, r, stmt)
					return err
				})
			})
		}
		if err != nil {
			reason := "insert failed: " + logging.SanitizeError(err)
			s.logger.Warn("Import batch failed",
				zap.String("table", table),
				zap.Int("first_row", converted.Source[start]),
				zap.Int("rows", end-start),
				zap.Error(err))
			for _, src := range converted.Source[start:end] {
				failed = append(failed, models.FailedRow{Row: src, Reason: reason})
			}
			continue
		}
		result.ImportedCount += end - start
	}
	return s.finish(table, result, failed), nil
}

func (s *importService) finish(table string, result *models.ImportResult, failed []models.FailedRow) *models.ImportResult {
	result.FailedRows = failed
	if result.FailedRows == nil {
		result.FailedRows = []models.FailedRow{}
	}
	result.FailedCount = len(result.FailedRows)
	s.logger.Info("Import finished",
		zap.String("table", table),
		zap.Int("imported", result.ImportedCount),
		zap.Int("failed", result.FailedCount))
	return result
}

var _ ImportService = (*importService)(nil)
