// internal/browser/xpath.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/devicesweep/internal/interactor"
)

// idSelector builds an attribute selector so ids need no CSS escaping.
func idSelector(id string) string {
	return fmt.Sprintf(`[id=%s]`, cssString(id))
}

func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so values containing both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// roleBases lists the implicit elements for the ARIA roles the flows use.
var roleBases = map[string]string{
	"button":   `//button | //input[@type='submit' or @type='button' or @type='reset'] | //*[@role='button']`,
	"link":     `//a[@href] | //*[@role='link']`,
	"textbox":  `//input[not(@type) or @type='text' or @type='email' or @type='tel' or @type='url' or @type='search' or @type='password'] | //textarea | //*[@role='textbox']`,
	"checkbox": `//input[@type='checkbox'] | //*[@role='checkbox']`,
	"radio":    `//input[@type='radio'] | //*[@role='radio']`,
	"combobox": `//select | //*[@role='combobox']`,
	"heading":  `//h1 | //h2 | //h3 | //h4 | //h5 | //h6 | //*[@role='heading']`,
}

const (
	upperASCII = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerASCII = "abcdefghijklmnopqrstuvwxyz"
)

// containsFold is a case-insensitive, whitespace-normalized contains() on
// expr, the way Playwright's getByText, getByLabel, getByPlaceholder and role
// names match by default. translate() folds ASCII letters only.
func containsFold(expr, value string) string {
	value = strings.ToLower(strings.Join(strings.Fields(value), " "))
	return fmt.Sprintf("contains(translate(%s, '%s', '%s'), %s)", expr, upperASCII, lowerASCII, xpathLiteral(value))
}

// accessibleName approximates an element's accessible name: its text, value or aria-label.
func accessibleName(name string) string {
	return fmt.Sprintf(`[%s or %s or %s]`,
		containsFold("normalize-space(.)", name), containsFold("@value", name), containsFold("@aria-label", name))
}

// LocatorXPath translates a non-CSS locator into an XPath expression selecting
// the first matching element in document order. Text, label, placeholder and
// role-name matching is case-insensitive on both drivers.
func LocatorXPath(loc interactor.Locator) string {
	var expr string
	switch loc.Strategy {
	case interactor.StrategyXPath:
		expr = loc.Value
	case interactor.StrategyText:
		match := containsFold("normalize-space(.)", loc.Value)
		// The deepest element containing the text, ignoring script and style bodies.
		expr = fmt.Sprintf(`//body//*[not(self::script or self::style)][%[1]s][not(.//*[%[1]s])]`, match)
	case interactor.StrategyPlaceholder:
		expr = fmt.Sprintf(`//*[@placeholder and %s]`, containsFold("@placeholder", loc.Value))
	case interactor.StrategyLabel:
		label := containsFold("normalize-space(.)", loc.Value)
		fields := `self::input or self::textarea or self::select`
		expr = fmt.Sprintf(`//*[%[2]s][@id = //label[%[1]s]/@for] | //label[%[1]s]//*[%[2]s] | //*[%[2]s][%[3]s]`,
			label, fields, containsFold("@aria-label", loc.Value))
	case interactor.StrategyRole:
		base, ok := roleBases[strings.ToLower(loc.Value)]
		if !ok {
			base = fmt.Sprintf(`//*[@role=%s]`, xpathLiteral(loc.Value))
		}
		expr = "(" + base + ")"
		if loc.Name != "" {
			expr += accessibleName(loc.Name)
		}
	case interactor.StrategyID:
		expr = fmt.Sprintf(`//*[@id=%s]`, xpathLiteral(loc.Value))
	default:
		return ""
	}
	return "(" + expr + ")[1]"
}

// chromeSelector picks the selector and query option chromedp should use for loc.
func chromeSelector(loc interactor.Locator) (string, chromedp.QueryOption) {
	switch loc.Strategy {
	case interactor.StrategyCSS:
		return loc.Value, chromedp.ByQuery
	case interactor.StrategyID:
		return idSelector(loc.Value), chromedp.ByQuery
	default:
		return LocatorXPath(loc), chromedp.BySearch
	}
}
