// internal/session/cdpsession/scripts.go
package cdpsession

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/kwdriver/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonEncode renders v as a JavaScript literal.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// findScript returns a function that collects the elements matching loc below its receiver.
// inFrame means the receiver is an iframe element and the search starts at its document.
func findScript(loc session.Locator, inFrame bool) string {
	root := "this"
	if inFrame {
		root = "this.contentDocument"
	}
	return fmt.Sprintf(`function() {
	const root = %s;
	if (!root) { throw new Error("frame document is not accessible"); }
	const loc = %s;
	const out = [];
	if (%t) {
		const doc = root.ownerDocument || root;
		const res = doc.evaluate(loc, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < res.snapshotLength; i++) {
			const n = res.snapshotItem(i);
			if (n.nodeType === Node.ELEMENT_NODE) { out.push(n); }
		}
	} else {
		out.push(...root.querySelectorAll(loc));
	}
	return out;
}`, root, jsonEncode(string(loc)), loc.IsXPath())
}

// elementScript wraps body so that a detached receiver reports {stale: true} and everything
// else reports {v: <result of body>}.
func elementScript(body string) string {
	return fmt.Sprintf(`function() {
	if (!this.isConnected) { return {stale: true}; }
	return {v: (function() { %s }).call(this)};
}`, body)
}

const displayedBody = `
	const style = window.getComputedStyle(this);
	if (style.display === "none" || style.visibility === "hidden" || style.opacity === "0") { return false; }
	const r = this.getBoundingClientRect();
	return r.width > 0 || r.height > 0;`

const enabledBody = `return !this.disabled && !this.closest("fieldset[disabled]");`

const selectedBody = `return !!(this.checked || this.selected);`

const textBody = `return this.innerText !== undefined ? this.innerText : (this.textContent || "");`

const valueBody = `return this.value == null ? "" : String(this.value);`

func attributeBody(name string) string {
	return fmt.Sprintf(`const n = %s; return this.hasAttribute(n) ? [this.getAttribute(n), true] : ["", false];`, jsonEncode(name))
}

// clickPointBody scrolls the receiver into view and returns the viewport coordinates of its
// center, or null when it is disabled, has no box or is covered by another element. Offsets
// of enclosing same-origin frames are added. Options have no box of their own and are
// selected directly.
const clickPointBody = `
	if (this.disabled) { return null; }
	if (this.tagName === "OPTION") {
		const sel = this.closest("select");
		if (!sel || sel.disabled) { return null; }
		this.selected = true;
		sel.dispatchEvent(new Event("input", {bubbles: true}));
		sel.dispatchEvent(new Event("change", {bubbles: true}));
		return {handled: true};
	}
	this.scrollIntoView({block: "center", inline: "center"});
	const r = this.getBoundingClientRect();
	if (r.width === 0 && r.height === 0) { return null; }
	let x = r.left + r.width / 2, y = r.top + r.height / 2;
	const hit = this.ownerDocument.elementFromPoint(x, y);
	if (!hit || !(hit === this || this.contains(hit))) { return null; }
	let w = this.ownerDocument.defaultView;
	while (w && w.frameElement) {
		const f = w.frameElement.getBoundingClientRect();
		x += f.left; y += f.top;
		w = w.parent;
	}
	return {x: x, y: y};`

const focusBody = `
	if (this.disabled || this.readOnly) { return false; }
	this.focus();
	return this.ownerDocument.activeElement === this;`

const clearBody = `
	if (this.disabled || this.readOnly) { return false; }
	this.focus();
	if (this.isContentEditable) { this.textContent = ""; } else { this.value = ""; }
	this.dispatchEvent(new Event("input", {bubbles: true}));
	this.dispatchEvent(new Event("change", {bubbles: true}));
	return true;`

// frameNameBody names a frame element for diagnostics and reports whether it is one.
const frameNameBody = `
	const tag = this.tagName.toLowerCase();
	if (tag !== "iframe" && tag !== "frame") { return null; }
	return this.getAttribute("name") || this.id || this.getAttribute("src") || tag;`

// userScript wraps a script body that may use return, evaluated in the top-level window.
func userScript(script string) string {
	return fmt.Sprintf(`(async function() { %s })()`, script)
}

// frameUserScript runs script inside the window of the receiving frame element.
func frameUserScript(script string) string {
	return fmt.Sprintf(`function() {
	const w = this.contentWindow;
	return (new w.Function("return (async function() { " + %s + " })()"))();
}`, jsonEncode(script))
}
