package export

import (
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Style - оформление ячейки. Оба рендерера (xlsx и PDF) переводят стиль в свои примитивы.
type Style int

const (
	StylePlain Style = iota
	StyleTitle
	StyleHeading
	StylePeriod
	StyleLabel
	StyleValue
	StyleHighlight
	StyleCompanyBlock
	StyleHeader
	StyleCenter
	StyleLeft
	StyleSeparator
	StyleSummaryLabel
	StyleSummaryValue
	StyleNotes
	StyleBand
	StyleSignature
	StyleError
	StyleFootnote
)

type styleSpec struct {
	Bold   bool
	Italic bool
	Size   float64
	Fill   string // RGB hex, пусто - без заливки
	Align  string // left | center | right
	Wrap   bool
	Border bool
}

const (
	colorLightBlue  = "DDEBF7"
	colorLightGray  = "D9D9D9"
	colorLightGreen = "E2EFDA"
	colorGray       = "BFBFBF"
	colorErrorRed   = "F8CBAD"
)

var styleSpecs = map[Style]styleSpec{
	StylePlain:        {Size: 10, Align: "left"},
	StyleTitle:        {Bold: true, Size: 16, Fill: colorLightBlue, Align: "center"},
	StyleHeading:      {Bold: true, Size: 16, Align: "center"},
	StylePeriod:       {Size: 10, Align: "center"},
	StyleLabel:        {Bold: true, Size: 10, Align: "left", Border: true},
	StyleValue:        {Size: 10, Align: "left", Border: true},
	StyleHighlight:    {Size: 10, Fill: colorLightGreen, Align: "left", Border: true},
	StyleCompanyBlock: {Size: 10, Align: "left", Wrap: true, Border: true},
	StyleHeader:       {Bold: true, Size: 10, Fill: colorLightGray, Align: "center", Wrap: true, Border: true},
	StyleCenter:       {Size: 10, Align: "center", Border: true},
	StyleLeft:         {Size: 10, Align: "left", Wrap: true, Border: true},
	StyleSeparator:    {Bold: true, Size: 10, Fill: colorLightGreen, Align: "left", Border: true},
	StyleSummaryLabel: {Bold: true, Size: 10, Align: "left", Border: true},
	StyleSummaryValue: {Size: 10, Align: "center", Border: true},
	StyleNotes:        {Bold: true, Size: 10, Fill: colorGray, Align: "left", Border: true},
	StyleBand:         {Size: 10, Align: "left", Border: true},
	StyleSignature:    {Size: 10, Align: "center", Border: true},
	StyleError:        {Bold: true, Size: 10, Fill: colorErrorRed, Align: "left", Wrap: true, Border: true},
	StyleFootnote:     {Italic: true, Size: 8, Align: "left"},
}

// Cell - текст в строке Row, столбцах Col..EndCol (1-based, EndCol > Col - объединение).
type Cell struct {
	Row    int
	Col    int
	EndCol int
	Text   string
	Style  Style
}

// Sheet - одна секция документа: лист xlsx и страница (или страницы) PDF.
type Sheet struct {
	Name       string
	Widths     []float64 // ширина столбцов в символах
	HeaderRow  int       // строка заголовка таблицы; повторяется на новых страницах PDF
	RowHeights map[int]float64
	Cells      []Cell
}

func newSheet(name string, widths []float64) *Sheet {
	return &Sheet{Name: name, Widths: widths, RowHeights: map[int]float64{}}
}

// Set записывает текст в одну ячейку.
func (s *Sheet) Set(row, col int, text string, st Style) {
	s.Cells = append(s.Cells, Cell{Row: row, Col: col, EndCol: col, Text: text, Style: st})
}

// Merge записывает текст в объединенный диапазон столбцов строки.
func (s *Sheet) Merge(row, col, endCol int, text string, st Style) {
	s.Cells = append(s.Cells, Cell{Row: row, Col: col, EndCol: endCol, Text: text, Style: st})
}

// MaxRow - последняя занятая строка.
func (s *Sheet) MaxRow() int {
	max := 0
	for _, c := range s.Cells {
		if c.Row > max {
			max = c.Row
		}
	}
	return max
}

// Rows группирует ячейки по строкам: индекс i - строка i+1, пустые строки сохраняются.
func (s *Sheet) Rows() [][]Cell {
	rows := make([][]Cell, s.MaxRow())
	for _, c := range s.Cells {
		rows[c.Row-1] = append(rows[c.Row-1], c)
	}
	for _, r := range rows {
		sort.Slice(r, func(i, j int) bool { return r[i].Col < r[j].Col })
	}
	return rows
}

// Text возвращает текст ячейки, начинающейся в (row, col).
func (s *Sheet) Text(row, col int) string {
	for _, c := range s.Cells {
		if c.Row == row && c.Col == col {
			return c.Text
		}
	}
	return ""
}

// Document - промежуточное представление выгрузки, общее для xlsx и PDF.
type Document struct {
	Kind    string
	Title   string
	Subject string
	Company string
	AuditID string
	Sheets  []*Sheet
}

const maxSheetName = 20

var sheetNameReplacer = strings.NewReplacer(":", "", "\\", "", "/", "", "?", "", "*", "", "[", "", "]", "")

// sheetName - "<prefix>_<имя>", очищенное от запрещенных символов и обрезанное до 20 символов.
// used отслеживает уже выданные имена, чтобы листы не совпадали.
func sheetName(prefix, driver string, used map[string]bool) string {
	base := truncateRunes(sheetNameReplacer.Replace(prefix+"_"+strings.TrimSpace(driver)), maxSheetName)
	name := base
	for i := 2; used[strings.ToLower(name)]; i++ {
		suffix := "~" + strconv.Itoa(i)
		name = truncateRunes(base, maxSheetName-utf8.RuneCountInString(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
