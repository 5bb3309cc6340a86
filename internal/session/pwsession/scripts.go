// internal/session/pwsession/scripts.go
package pwsession

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const displayedExpr = `el => {
	const style = window.getComputedStyle(el);
	if (style.display === "none" || style.visibility === "hidden" || style.opacity === "0") return false;
	const r = el.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
}`

const selectOptionExpr = `el => {
	if (el.tagName !== "OPTION") return false;
	const sel = el.closest("select");
	el.selected = true;
	if (sel) {
		sel.dispatchEvent(new Event("input", {bubbles: true}));
		sel.dispatchEvent(new Event("change", {bubbles: true}));
	}
	return true;
}`

const clearExpr = `el => {
	if ("value" in el) el.value = "";
	else if (el.isContentEditable) el.textContent = "";
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));
}`

// userScript wraps a script body so "return" works and promises are awaited.
func userScript(script string) string {
	return fmt.Sprintf(`(async function() { %s })()`, script)
}

// decodeInto converts an evaluation result into res by re-encoding it.
func decodeInto(v interface{}, res any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode script result: %w", err)
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}
