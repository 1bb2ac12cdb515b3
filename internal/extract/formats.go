package extract

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"supplyrecon/internal"
	"supplyrecon/internal/logx"
)

// parseXLSX reads the first sheet that yields line items.
func parseXLSX(content []byte) (internal.DraftInvoice, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return internal.DraftInvoice{}, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if d := tableDraft(rows); len(d.Items) > 0 {
			logx.Debug().Str("sheet", sheet).Int("items", len(d.Items)).Msg("xlsx sheet parsed")
			return d, nil
		}
	}
	return internal.DraftInvoice{}, nil
}

func parseCSV(content []byte) (internal.DraftInvoice, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = sniffDelimiter(content)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return internal.DraftInvoice{}, err
		}
		rows = append(rows, rec)
	}
	return tableDraft(rows), nil
}

// sniffDelimiter picks the most frequent of ; , and tab on the first line.
func sniffDelimiter(content []byte) rune {
	first := string(content)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	best, bestCount := ',', strings.Count(first, ",")
	for _, c := range []rune{';', '\t'} {
		if n := strings.Count(first, string(c)); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// parseHTML reads every table with a recognizable header; text outside the
// tables feeds the invoice metadata.
func parseHTML(html string) (internal.DraftInvoice, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return internal.DraftInvoice{}, err
	}

	var draft internal.DraftInvoice
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if table.Find("table").Length() > 0 {
			return
		}
		rows := [][]string{}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			rows = append(rows, cells)
		})
		if len(rows) < 2 {
			return
		}
		d := tableDraft(rows)
		if len(d.Items) == 0 {
			return
		}
		draft.Items = append(draft.Items, d.Items...)
		mergeMeta(&draft, d)
	})

	var meta metaScan
	doc.Find("h1,h2,h3,h4,h5,p,li,span").Each(func(_ int, sel *goquery.Selection) {
		if sel.Closest("table").Length() > 0 {
			return
		}
		meta.line(sel.Text())
	})
	meta.apply(&draft)
	return draft, nil
}

func parsePDF(content []byte) (internal.DraftInvoice, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return internal.DraftInvoice{}, err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			logx.Warn().Err(err).Int("page", i).Msg("pdf page skipped")
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return parseText(b.String()), nil
}

// mergeMeta copies header fields from src into dst where dst has none.
func mergeMeta(dst *internal.DraftInvoice, src internal.DraftInvoice) {
	m := metaScan{
		supplier: src.SupplierName,
		number:   src.InvoiceNumber,
		date:     src.InvoiceDate,
		currency: src.Currency,
		subtotal: src.DeclaredSubtotal,
		tax:      src.DeclaredTax,
		total:    src.DeclaredTotal,
	}
	m.apply(dst)
}
