// Package report renders batch results as xlsx spreadsheets for download.
package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/internal/store"
)

// DefaultSheetName is the worksheet tab title.
const DefaultSheetName = "Consultas"

// pendingLabel fills rows whose identifier has no result record yet.
const pendingLabel = "aguardando retorno do webhook"

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// brl renders pt-BR currency ("R$ 1.523,87").
var brl = message.NewPrinter(language.BrazilianPortuguese)

// Report is a rendered spreadsheet.
type Report struct {
	FileName string
	Content  []byte
}

// DataURI encodes the spreadsheet for inline browser download.
func (r *Report) DataURI() string {
	return "data:" + xlsxMIME + ";base64," + base64.StdEncoding.EncodeToString(r.Content)
}

// Assembler builds reports from the result store.
type Assembler struct {
	store     store.Store
	sheetName string
	now       func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithSheetName overrides the worksheet title.
func WithSheetName(name string) Option {
	return func(a *Assembler) {
		if name != "" {
			a.sheetName = name
		}
	}
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// NewAssembler creates an Assembler over the given store.
func NewAssembler(st store.Store, opts ...Option) *Assembler {
	a := &Assembler{store: st, sheetName: DefaultSheetName, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate renders the report for one job. Every submitted identifier gets
// exactly one row, in submission order; identifiers still waiting on a
// webhook are marked rather than omitted, so a report can be generated at any
// point in the job's life.
func (a *Assembler) Generate(ctx context.Context, jobID string) (*Report, error) {
	job, err := a.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrapf(err, "report: load job %s", jobID)
	}

	keys := make([]string, len(job.Identifiers))
	for i, id := range job.Identifiers {
		keys[i] = model.CorrelationKey(job.Provider, id)
	}
	results, err := a.store.GetResults(ctx, keys)
	if err != nil {
		return nil, eris.Wrapf(err, "report: load results for job %s", jobID)
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(a.sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, title := range []string{"CPF", "Situação", "Saldo", "Mensagem", "Recebido em"} {
		header.AddCell().Value = title
	}

	for i, id := range job.Identifiers {
		row := sheet.AddRow()
		row.AddCell().Value = id

		rec, ok := results[keys[i]]
		if !ok {
			row.AddCell().Value = pendingLabel
			row.AddCell()
			row.AddCell()
			row.AddCell()
			continue
		}

		row.AddCell().Value = statusLabel(rec.Status)
		if rec.Balance != nil {
			row.AddCell().Value = FormatBRL(*rec.Balance)
		} else {
			row.AddCell()
		}
		row.AddCell().Value = rec.Message
		row.AddCell().Value = rec.ReceivedAt.Format("02/01/2006 15:04:05")
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "report: write workbook")
	}

	generatedAt := a.now().UTC()
	rep := &Report{
		FileName: fmt.Sprintf("consulta-%s-%s.xlsx", job.Provider, generatedAt.Format("20060102-150405")),
		Content:  buf.Bytes(),
	}

	if err := a.store.AppendActivity(ctx, &model.ActivityLogEntry{
		ID:        uuid.New().String(),
		UserID:    job.OwnerID,
		UserEmail: job.OwnerEmail,
		Action:    model.ActionReportGenerated,
		Provider:  job.Provider,
		Detail:    rep.FileName,
		CreatedAt: generatedAt,
	}); err != nil {
		zap.L().Warn("report: append activity failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
	return rep, nil
}

// FormatBRL renders a value as Brazilian currency, e.g. "R$ 1.523,87".
func FormatBRL(v float64) string {
	return brl.Sprintf("R$ %v", number.Decimal(v,
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

func statusLabel(s model.ResultStatus) string {
	switch s {
	case model.ResultStatusSuccess:
		return "sucesso"
	case model.ResultStatusError:
		return "erro"
	}
	return string(s)
}
