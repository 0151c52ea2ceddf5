package cdp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp/kb"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
)

// Thrown from page scripts and matched in mapError.
const (
	staleMarker           = "shopsmoke:stale"
	notInteractableMarker = "shopsmoke:not-interactable"
)

// findScript returns an expression evaluating to an array of the elements
// matching loc, in document order.
func findScript(loc core.Locator) (string, error) {
	sel, err := json.Marshal(loc.Selector)
	if err != nil {
		return "", err
	}
	switch loc.Strategy {
	case core.StrategyCSS:
		return fmt.Sprintf("Array.from(document.querySelectorAll(%s))", sel), nil
	case core.StrategyTagName:
		return fmt.Sprintf("Array.from(document.getElementsByTagName(%s))", sel), nil
	case core.StrategyLinkText:
		return fmt.Sprintf("Array.from(document.querySelectorAll('a')).filter(a => a.textContent.trim() === %s)", sel), nil
	case core.StrategyPartialLinkText:
		return fmt.Sprintf("Array.from(document.querySelectorAll('a')).filter(a => a.textContent.includes(%s))", sel), nil
	case core.StrategyXPath:
		return fmt.Sprintf(`(() => {
	const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
	const out = [];
	for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
	return out;
})()`, sel), nil
	}
	return "", core.ErrInvalidConfig.WithMessagef("unsupported locator strategy %q", loc.Strategy)
}

// clickPointFunc scrolls the element into view and returns its center in
// viewport coordinates.
var clickPointFunc = `function() {
	if (!this.isConnected) throw new Error("` + staleMarker + `");
	this.scrollIntoView({block: "center", inline: "center"});
	const r = this.getBoundingClientRect();
	if (r.width === 0 && r.height === 0) throw new Error("` + notInteractableMarker + `");
	return [r.left + r.width / 2, r.top + r.height / 2];
}`

var focusFunc = `function() {
	if (!this.isConnected) throw new Error("` + staleMarker + `");
	this.scrollIntoView({block: "center", inline: "center"});
	this.focus();
}`

// scriptFunc wraps a WebDriver-style script body so it can be called with
// CallFunctionOn. Element arguments travel as remote objects (the function's
// own arguments); other values are inlined as JSON.
func scriptFunc(script string, args []interface{}) (decl string, elements []core.ElementRef, err error) {
	parts := make([]string, len(args))
	for i, a := range args {
		if ref, ok := a.(core.ElementRef); ok {
			parts[i] = fmt.Sprintf("arguments[%d]", len(elements))
			elements = append(elements, ref)
			continue
		}
		v, err := json.Marshal(a)
		if err != nil {
			return "", nil, core.ErrInvalidConfig.WithMessagef("script argument %d is not serializable", i).WithCause(err)
		}
		parts[i] = string(v)
	}
	decl = fmt.Sprintf("function() {\n\treturn (function() {\n%s\n\t}).apply(window, [%s]);\n}",
		script, strings.Join(parts, ", "))
	return decl, elements, nil
}

// keySequence translates WebDriver key code points into chromedp keys.
func keySequence(text string) string {
	return strings.ReplaceAll(text, core.KeyEnter, kb.Enter)
}
