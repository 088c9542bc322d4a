package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

// ErrNoDocuments is returned when a bulk render receives an empty batch.
var ErrNoDocuments = errors.New("no bulletin documents to render")

const (
	pageMarginMM   = 15.0
	bottomMarginMM = 20.0
	contentWidthMM = 180.0
	rowHeightMM    = 7.0
	cellLineMM     = 4.0
	logoSizeMM     = 22.0
	logoImageName  = "bulletin-logo"
	placeholderDim = 90
)

// Signatory is a signature block printed at the bottom of each bulletin.
type Signatory struct {
	Title string
	Image []byte
}

// defaultSignatory is printed when no signatory is configured.
var defaultSignatory = Signatory{Title: "Le Chef d'établissement"}

// BulletinAssets are the institution-level inputs of the renderer. Image bytes are used as given;
// absent or undecodable images are replaced by text placeholders.
type BulletinAssets struct {
	InstitutionName string
	Logo            []byte
	Signatories     []Signatory
}

type probedImage struct {
	name string
	data []byte
	opts gofpdf.ImageOptions
}

// BulletinRenderer turns report card documents into PDF bulletins. It holds only immutable
// assets; every call builds its own gofpdf document so concurrent calls never share a cursor.
type BulletinRenderer struct {
	institution string
	logo        *probedImage
	signatories []Signatory
	signatures  []*probedImage
	compress    bool

	// pageHook runs after each bulletin page set is drawn.
	pageHook func(pdf *gofpdf.Fpdf, doc models.ReportCardDocument)
}

type column struct {
	title string
	width float64
	align string
	wrap  bool
}

var bulletinColumns = []column{
	{title: "Matière", width: 34, align: "L", wrap: true},
	{title: "Professeur", width: 30, align: "L", wrap: true},
	{title: "Coef.", width: 11, align: "C"},
	{title: "Moyenne", width: 16, align: "C"},
	{title: "Total", width: 16, align: "C"},
	{title: "Min cl.", width: 14, align: "C"},
	{title: "Moy. cl.", width: 15, align: "C"},
	{title: "Max cl.", width: 14, align: "C"},
	{title: "Appréciation", width: 30, align: "L", wrap: true},
}

// NewBulletinRenderer probes the optional images once and returns a reusable renderer.
func NewBulletinRenderer(assets BulletinAssets) *BulletinRenderer {
	signatories := assets.Signatories
	if len(signatories) == 0 {
		signatories = []Signatory{defaultSignatory}
	}
	r := &BulletinRenderer{
		institution: strings.TrimSpace(assets.InstitutionName),
		logo:        probeImage(logoImageName, assets.Logo),
		signatories: signatories,
		signatures:  make([]*probedImage, len(signatories)),
		compress:    true,
	}
	for i, s := range signatories {
		r.signatures[i] = probeImage(fmt.Sprintf("bulletin-signature-%d", i), s.Image)
	}
	return r
}

// Render writes a single bulletin as PDF to w.
func (r *BulletinRenderer) Render(w io.Writer, doc models.ReportCardDocument) error {
	skipped, err := r.RenderBulk(w, []models.ReportCardDocument{doc})
	if cause, ok := skipped[0]; ok {
		return cause
	}
	return err
}

// RenderBulk writes the documents into one PDF, each bulletin starting on a new page, in the
// order given. A document that cannot be drawn is left out and its error is returned under its
// index in skipped. ErrNoDocuments is returned when no document is left to write.
// Nothing is written to w unless the combined document is complete.
func (r *BulletinRenderer) RenderBulk(w io.Writer, docs []models.ReportCardDocument) (skipped map[int]error, err error) {
	skipped = make(map[int]error)
	for len(skipped) < len(docs) {
		pdf, failed, cause := r.build(docs, skipped)
		if failed >= 0 {
			skipped[failed] = cause
			continue
		}
		if err := pdf.Output(w); err != nil {
			return skipped, fmt.Errorf("write bulletin: %w", err)
		}
		return skipped, nil
	}
	return skipped, ErrNoDocuments
}

// build draws every document not yet skipped. gofpdf errors are sticky, so the first failing
// document aborts the pass and its index is returned; failed is -1 when every page was drawn.
func (r *BulletinRenderer) build(docs []models.ReportCardDocument, skipped map[int]error) (pdf *gofpdf.Fpdf, failed int, cause error) {
	pdf = gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMarginMM, pageMarginMM, pageMarginMM)
	pdf.SetAutoPageBreak(true, bottomMarginMM)
	pdf.SetCompression(r.compress)
	pdf.SetTitle("Bulletins de notes", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	r.registerImages(pdf)

	current := ""
	pdf.SetFooterFunc(func() {
		pdf.SetY(-13)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(contentWidthMM/2, 5, tr(current), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentWidthMM/2, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	for i, doc := range docs {
		if _, ok := skipped[i]; ok {
			continue
		}
		if err := r.page(pdf, tr, doc, &current); err != nil {
			return nil, i, err
		}
	}
	return pdf, -1, nil
}

func (r *BulletinRenderer) page(pdf *gofpdf.Fpdf, tr func(string) string, doc models.ReportCardDocument, current *string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("render bulletin panicked: %v", rec)
		}
	}()
	pdf.AddPage()
	*current = doc.StudentName
	r.header(pdf, tr)
	r.title(pdf, tr, doc)
	r.identity(pdf, tr, doc)
	r.table(pdf, tr, doc)
	r.summary(pdf, tr, doc)
	r.council(pdf, tr, doc)
	r.signatureBlocks(pdf, tr)
	if r.pageHook != nil {
		r.pageHook(pdf, doc)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render bulletin: %w", err)
	}
	return nil
}

// BulletinFilename returns Bulletin_<name>_<term>.<ext> with spaces turned into underscores and
// path-unsafe characters removed.
func BulletinFilename(studentName, term, ext string) string {
	return DocumentFilename("Bulletin", studentName, term, ext)
}

// DocumentFilename returns <prefix>_<name>_<term>.<ext> sanitised like BulletinFilename.
func DocumentFilename(prefix, name, term, ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "pdf"
	}
	return fmt.Sprintf("%s_%s_%s.%s", prefix, filenamePart(name), filenamePart(term), ext)
}

var filenameReplacer = strings.NewReplacer(
	" ", "_", "/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
)

func filenamePart(raw string) string {
	part := filenameReplacer.Replace(strings.TrimSpace(raw))
	for strings.Contains(part, "..") {
		part = strings.ReplaceAll(part, "..", ".")
	}
	if part == "" {
		return "NA"
	}
	return part
}

func (r *BulletinRenderer) registerImages(pdf *gofpdf.Fpdf) {
	images := append([]*probedImage{r.logo}, r.signatures...)
	for _, img := range images {
		if img == nil {
			continue
		}
		pdf.RegisterImageOptionsReader(img.name, img.opts, bytes.NewReader(img.data))
	}
}

func (r *BulletinRenderer) header(pdf *gofpdf.Fpdf, tr func(string) string) {
	top := pdf.GetY()
	if r.logo != nil {
		pdf.ImageOptions(r.logo.name, pageMarginMM, top, logoSizeMM, logoSizeMM, false, r.logo.opts, 0, "")
	} else {
		pdf.SetDrawColor(placeholderDim, placeholderDim, placeholderDim)
		pdf.Rect(pageMarginMM, top, logoSizeMM, logoSizeMM, "D")
		pdf.SetFont("Arial", "", 8)
		pdf.SetXY(pageMarginMM, top+logoSizeMM/2-2)
		pdf.CellFormat(logoSizeMM, 4, "[LOGO]", "", 0, "C", false, 0, "")
		pdf.SetDrawColor(0, 0, 0)
	}

	institution := r.institution
	if institution == "" {
		institution = "[ÉTABLISSEMENT]"
	}
	pdf.SetXY(pageMarginMM+logoSizeMM+4, top+6)
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(contentWidthMM-logoSizeMM-4, 8, tr(institution), "", 0, "C", false, 0, "")

	pdf.SetY(top + logoSizeMM + 3)
	pdf.Line(pageMarginMM, pdf.GetY(), pageMarginMM+contentWidthMM, pdf.GetY())
	pdf.Ln(4)
}

func (r *BulletinRenderer) title(pdf *gofpdf.Fpdf, tr func(string) string, doc models.ReportCardDocument) {
	parts := []string{"BULLETIN DE NOTES"}
	if doc.TermLabel != "" {
		parts = append(parts, doc.TermLabel)
	}
	if doc.SchoolYear != "" {
		parts = append(parts, doc.SchoolYear)
	}
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(contentWidthMM, 8, tr(strings.Join(parts, " — ")), "", 1, "C", false, 0, "")
	pdf.Ln(3)
}

func (r *BulletinRenderer) identity(pdf *gofpdf.Fpdf, tr func(string) string, doc models.ReportCardDocument) {
	line := func(label, value string) {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(contentWidthMM-35, 6, tr(orDash(value)), "", 1, "L", false, 0, "")
	}
	line("Élève :", doc.StudentName)
	line("Matricule :", doc.Matriculation)
	line("Classe :", doc.ClassName)
	line("Année scolaire :", doc.SchoolYear)
	line("Période :", doc.TermLabel)
	pdf.Ln(3)
}

func (r *BulletinRenderer) tableHeader(pdf *gofpdf.Fpdf, tr func(string) string) {
	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(217, 225, 242)
	for _, col := range bulletinColumns {
		pdf.CellFormat(col.width, rowHeightMM, tr(col.title), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
}

func (r *BulletinRenderer) table(pdf *gofpdf.Fpdf, tr func(string) string, doc models.ReportCardDocument) {
	r.tableHeader(pdf, tr)
	if len(doc.Rows) == 0 {
		pdf.CellFormat(contentWidthMM, rowHeightMM, tr("Aucune note enregistrée pour cette période"), "1", 1, "C", false, 0, "")
		return
	}
	_, pageHeight := pdf.GetPageSize()
	for _, row := range doc.Rows {
		values := []string{
			row.Subject,
			orDash(row.Teacher),
			formatCoefficient(row.Coefficient),
			formatScore(row.Average),
			formatScore(row.WeightedTotal),
			formatOptional(row.ClassMin),
			formatOptional(row.ClassMean),
			formatOptional(row.ClassMax),
			row.Remark,
		}
		cells, height := r.rowCells(pdf, tr, values)
		if pdf.GetY()+height > pageHeight-bottomMarginMM {
			pdf.AddPage()
			r.tableHeader(pdf, tr)
		}
		x, y := pageMarginMM, pdf.GetY()
		for i, col := range bulletinColumns {
			pdf.Rect(x, y, col.width, height, "D")
			pdf.SetXY(x, y+(height-float64(len(cells[i]))*cellLineMM)/2)
			for _, line := range cells[i] {
				pdf.CellFormat(col.width, cellLineMM, line, "", 2, col.align, false, 0, "")
			}
			x += col.width
		}
		pdf.SetXY(pageMarginMM, y+height)
	}
	pdf.Ln(3)
}

// rowCells splits every value into the lines of its cell. Wrapping columns grow the row;
// the others are shortened to one line.
func (r *BulletinRenderer) rowCells(pdf *gofpdf.Fpdf, tr func(string) string, values []string) ([][]string, float64) {
	cells := make([][]string, len(values))
	height := rowHeightMM
	for i, col := range bulletinColumns {
		text := tr(values[i])
		if col.wrap {
			for _, line := range pdf.SplitLines([]byte(text), col.width-2) {
				cells[i] = append(cells[i], string(line))
			}
		} else {
			cells[i] = []string{fitText(pdf, text, col.width-2)}
		}
		if h := float64(len(cells[i]))*cellLineMM + 3; h > height {
			height = h
		}
	}
	return cells, height
}

func (r *BulletinRenderer) summary(pdf *gofpdf.Fpdf, tr func(string) string, doc models.ReportCardDocument) {
	line := func(label, value string) {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(55, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(contentWidthMM-55, 6, tr(value), "", 1, "L", false, 0, "")
	}
	line("Total des points :", fmt.Sprintf("%s / %s", formatScore(doc.TotalWeightedPoints), formatCoefficient(doc.TotalCoefficient)))
	line("Moyenne générale :", formatScore(doc.GeneralAverage)+" / 20")
	if doc.Rank != nil {
		rank := strconv.Itoa(*doc.Rank)
		if doc.ClassSize != nil {
			rank = fmt.Sprintf("%d / %d", *doc.Rank, *doc.ClassSize)
		}
		line("Rang :", rank)
	}
	line("Mention :", doc.Mention)
	pdf.Ln(3)
}

func (r *BulletinRenderer) council(pdf *gofpdf.Fpdf, tr func(string) string, doc models.ReportCardDocument) {
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(contentWidthMM, 6, tr("Appréciation du conseil de classe"), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	comment := strings.TrimSpace(doc.CouncilComment)
	if comment == "" {
		comment = "-"
	}
	pdf.MultiCell(contentWidthMM, 5, tr(comment), "1", "L", false)
	pdf.Ln(6)
}

func (r *BulletinRenderer) signatureBlocks(pdf *gofpdf.Fpdf, tr func(string) string) {
	const blockHeight = 30.0
	_, pageHeight := pdf.GetPageSize()
	if pdf.GetY()+blockHeight > pageHeight-bottomMarginMM {
		pdf.AddPage()
	}
	width := contentWidthMM / float64(len(r.signatories))
	top := pdf.GetY()
	for i, signatory := range r.signatories {
		x := pageMarginMM + float64(i)*width
		pdf.SetXY(x, top)
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(width, 5, tr(orDash(signatory.Title)), "", 0, "C", false, 0, "")

		img := r.signatures[i]
		if img != nil {
			pdf.ImageOptions(img.name, x+width/2-20, top+7, 40, 18, false, img.opts, 0, "")
			continue
		}
		pdf.SetDrawColor(placeholderDim, placeholderDim, placeholderDim)
		pdf.Line(x+8, top+22, x+width-8, top+22)
		pdf.SetDrawColor(0, 0, 0)
		pdf.SetXY(x, top+23)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(width, 4, "Signature", "", 0, "C", false, 0, "")
	}
	pdf.SetY(top + blockHeight)
}

// probeImage registers the bytes on a throwaway document to decide whether they decode.
func probeImage(name string, data []byte) *probedImage {
	if len(data) == 0 {
		return nil
	}
	imageType := detectImageType(data)
	if imageType == "" {
		return nil
	}
	opts := gofpdf.ImageOptions{ImageType: imageType, ReadDpi: true}
	scratch := gofpdf.New("P", "mm", "A4", "")
	scratch.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if !scratch.Ok() {
		return nil
	}
	return &probedImage{name: name, data: data, opts: opts}
}

func detectImageType(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return "PNG"
	case "image/jpeg":
		return "JPG"
	case "image/gif":
		return "GIF"
	default:
		return ""
	}
}

func fitText(pdf *gofpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	// text is already cp1252, one byte per glyph
	for len(text) > 0 && pdf.GetStringWidth(text+"...") > width {
		text = text[:len(text)-1]
	}
	return text + "..."
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatCoefficient(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatScore(*v)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
