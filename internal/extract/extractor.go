// Package extract turns a rendered detail page into a normalized business
// record. It is a pure function over an HTML snapshot: same bytes in, same
// record out.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/registrar-data/entityproc/internal/registry"
)

// Section headings as the portal renders them. The heading text addresses
// the section's table; its absence is a structural error, not an empty read.
const (
	sectionBusiness = "Business Information"
	sectionAgent    = "Registered Agent Information"
	sectionOfficers = "Officer Information"
)

// fieldRule binds one portal label to its destination field. Labels are the
// addressing keys; positional offsets are never used, so a reshuffled layout
// either still reads correctly or fails loudly on a missing label.
type fieldRule struct {
	label    string
	required bool
	assign   func(*registry.BusinessInfo, string)
}

var businessRules = []fieldRule{
	{"Business Name", true, func(b *registry.BusinessInfo, v string) { b.BusinessName = v }},
	{"Control Number", true, func(b *registry.BusinessInfo, v string) { b.ControlNumber = v }},
	{"Business Type", true, func(b *registry.BusinessInfo, v string) { b.BusinessType = v }},
	{"Business Status", true, func(b *registry.BusinessInfo, v string) { b.BusinessStatus = v }},
	{"Business Purpose", false, func(b *registry.BusinessInfo, v string) { b.BusinessPurpose = v }},
	{"Principal Office Address", false, func(b *registry.BusinessInfo, v string) { b.PrincipalOfficeAddress = v }},
	{"Date of Formation / Registration Date", false, func(b *registry.BusinessInfo, v string) { b.DateOfFormation = v }},
	{"Jurisdiction", false, func(b *registry.BusinessInfo, v string) { b.Jurisdiction = v }},
	{"Last Annual Registration Year", false, func(b *registry.BusinessInfo, v string) { b.LastAnnualRegistrationYear = v }},
	{"Dissolved Date", false, func(b *registry.BusinessInfo, v string) { b.DissolvedDate = v }},
}

var agentRules = []struct {
	label  string
	assign func(*registry.RegisteredAgent, string)
}{
	{"Registered Agent Name", func(a *registry.RegisteredAgent, v string) { a.Name = v }},
	{"Physical Address", func(a *registry.RegisteredAgent, v string) { a.PhysicalAddress = v }},
	{"County", func(a *registry.RegisteredAgent, v string) { a.County = v }},
}

// Config tunes the extraction pass.
type Config struct {
	// OfficerGridSelector locates the repeating officer grid inside (or, on
	// older layouts, beside) the officer section table.
	OfficerGridSelector string
}

// Extractor parses detail pages.
type Extractor struct {
	officerGrid string
}

// New constructs an Extractor.
func New(cfg Config) *Extractor {
	grid := cfg.OfficerGridSelector
	if grid == "" {
		grid = "table.gridstyle"
	}
	return &Extractor{officerGrid: grid}
}

// Extract runs the three sub-passes. Any structural mismatch aborts the
// whole record with a ParseError; a partially filled record is never
// returned.
func (e *Extractor) Extract(html string) (*registry.BusinessRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return nil, &registry.ParseError{Section: "document", Reason: err.Error()}
	}

	info, err := e.extractBusinessInfo(doc)
	if err != nil {
		return nil, err
	}
	agent, err := e.extractAgent(doc)
	if err != nil {
		return nil, err
	}
	officers, err := e.extractOfficers(doc)
	if err != nil {
		return nil, err
	}

	return &registry.BusinessRecord{
		Info:     info,
		Agent:    agent,
		Officers: officers,
	}, nil
}

func (e *Extractor) extractBusinessInfo(doc *goquery.Document) (registry.BusinessInfo, error) {
	var info registry.BusinessInfo
	section, err := findSection(doc, sectionBusiness)
	if err != nil {
		return info, err
	}
	for _, rule := range businessRules {
		value, found := rowValue(section, rule.label)
		if !found && rule.required {
			return info, &registry.ParseError{
				Section: sectionBusiness,
				Label:   rule.label,
				Reason:  "label not found",
			}
		}
		rule.assign(&info, value)
	}
	return info, nil
}

// extractAgent requires the section container even though every value may
// legitimately be empty for a dissolved or agentless entity.
func (e *Extractor) extractAgent(doc *goquery.Document) (registry.RegisteredAgent, error) {
	var agent registry.RegisteredAgent
	section, err := findSection(doc, sectionAgent)
	if err != nil {
		return agent, err
	}
	for _, rule := range agentRules {
		value, _ := rowValue(section, rule.label)
		rule.assign(&agent, value)
	}
	return agent, nil
}

// extractOfficers iterates the repeating grid in document order. A present
// section with zero data rows is an empty list, not an error.
func (e *Extractor) extractOfficers(doc *goquery.Document) ([]registry.Officer, error) {
	section, err := findSection(doc, sectionOfficers)
	if err != nil {
		return nil, err
	}

	grid := section.Find(e.officerGrid)
	if grid.Length() == 0 && section.Is(e.officerGrid) {
		grid = section
	}
	if grid.Length() == 0 {
		// Older layouts place the grid as a sibling of the heading table.
		grid = doc.Find(e.officerGrid)
	}

	officers := make([]registry.Officer, 0)
	grid.First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		officers = append(officers, registry.Officer{
			Name:            normalize(cells.Eq(0).Text()),
			Title:           normalize(cells.Eq(1).Text()),
			BusinessAddress: normalize(cells.Eq(2).Text()),
		})
	})
	return officers, nil
}

// findSection locates the table owning the cell whose text matches the
// heading.
func findSection(doc *goquery.Document, heading string) (*goquery.Selection, error) {
	cell := doc.Find("td, th").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(normalize(s.Text()), heading)
	}).First()
	if cell.Length() == 0 {
		return nil, &registry.ParseError{Section: heading, Reason: "section container not found"}
	}
	table := cell.Closest("table")
	if table.Length() == 0 {
		return nil, &registry.ParseError{Section: heading, Reason: "heading cell outside any table"}
	}
	return table, nil
}

// rowValue scans the section's rows for a cell matching the label and
// returns the adjacent cell's text.
func rowValue(section *goquery.Selection, label string) (string, bool) {
	var (
		value string
		found bool
	)
	section.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		for i := 0; i < cells.Length()-1; i++ {
			if labelMatches(cells.Eq(i).Text(), label) {
				value = normalize(cells.Eq(i + 1).Text())
				found = true
				return false
			}
		}
		return true
	})
	return value, found
}

// labelMatches compares a cell against a label, tolerating the portal's
// trailing colons and whitespace but never matching on substrings, so
// "Business Name" cannot claim a "Former Business Name" row.
func labelMatches(cellText, label string) bool {
	key := strings.TrimSuffix(normalize(cellText), ":")
	return strings.EqualFold(key, label)
}

// normalize collapses whitespace runs and trims the result, so extracted
// values are stable regardless of the portal's indentation.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ registry.Extractor = (*Extractor)(nil)
