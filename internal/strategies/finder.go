package strategies

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/ascribo/internal/browser"
)

// Marker attributes the finder script stamps onto matched elements so the
// CDP layer can address them with plain attribute selectors afterwards.
const (
	emailMarkerSelector  = `[data-ascr-email="1"]`
	submitMarkerSelector = `[data-ascr-submit="1"]`
)

// findResult is the finder script's return value
type findResult struct {
	Found       bool   `json:"found"`
	Email       string `json:"email"` // Short descriptor of the matched input, for traces
	SubmitFound bool   `json:"submitFound"`
	Submit      string `json:"submit"`
	Scope       string `json:"scope"`
}

// finderScript locates the first visible email input inside the given
// scopes, tags it and its nearest submit control with marker attributes,
// and reports what it found. All matching happens in one page-side pass
// because round-tripping candidate lists over CDP is slow and racy against
// re-rendering frameworks.
const finderScript = `(function() {
  var scopes = %s;
  var EMAIL_ATTR = 'data-ascr-email';
  var SUBMIT_ATTR = 'data-ascr-submit';

  var stale = document.querySelectorAll('[' + EMAIL_ATTR + '],[' + SUBMIT_ATTR + ']');
  for (var i = 0; i < stale.length; i++) {
    stale[i].removeAttribute(EMAIL_ATTR);
    stale[i].removeAttribute(SUBMIT_ATTR);
  }

  function visible(el) {
    return !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
  }
  function inLoginForm(el) {
    var f = el.closest('form');
    return !!(f && f.querySelector('input[type="password"]'));
  }
  function describe(el) {
    var d = el.tagName.toLowerCase();
    if (el.id) d += '#' + el.id;
    else if (typeof el.className === 'string' && el.className.trim()) {
      d += '.' + el.className.trim().split(/\s+/).slice(0, 2).join('.');
    }
    return d;
  }

  var emailSel = 'input[type="email"], input[name*="email" i], input[id*="email" i], ' +
    'input[placeholder*="mail" i], input[type="text"][class*="email" i]';
  var submitSel = 'button[type="submit"], input[type="submit"], button:not([type])';
  var submitWords = ['subscribe', 'sign up', 'signup', 'join', 'submit', 'send', 'register'];

  var roots = [];
  if (scopes.length === 0) {
    roots = [document];
  } else {
    for (var s = 0; s < scopes.length; s++) {
      var matched = document.querySelectorAll(scopes[s]);
      for (var m = 0; m < matched.length; m++) roots.push(matched[m]);
    }
  }

  for (var r = 0; r < roots.length; r++) {
    var root = roots[r];
    var inputs = root.querySelectorAll(emailSel);
    var input = null;
    for (var j = 0; j < inputs.length; j++) {
      if (visible(inputs[j]) && !inputs[j].disabled && !inLoginForm(inputs[j])) {
        input = inputs[j];
        break;
      }
    }
    if (!input) continue;
    input.setAttribute(EMAIL_ATTR, '1');

    var container = input.closest('form');
    if (!container) {
      container = (root instanceof Document)
        ? (input.closest('div,section,footer,header') || document.body)
        : root;
    }

    var submit = null;
    var buttons = container.querySelectorAll(submitSel);
    for (var k = 0; k < buttons.length; k++) {
      if (visible(buttons[k])) { submit = buttons[k]; break; }
    }
    if (!submit) {
      var clickables = container.querySelectorAll('button, a, [role="button"]');
      for (var c = 0; c < clickables.length && !submit; c++) {
        var el = clickables[c];
        if (!visible(el)) continue;
        var text = (el.innerText || el.value || '').trim().toLowerCase();
        for (var w = 0; w < submitWords.length; w++) {
          if (text.indexOf(submitWords[w]) !== -1) { submit = el; break; }
        }
      }
    }
    if (submit) submit.setAttribute(SUBMIT_ATTR, '1');

    return {
      found: true,
      email: describe(input),
      submitFound: !!submit,
      submit: submit ? describe(submit) : '',
      scope: (root instanceof Document) ? 'document' : describe(root)
    };
  }

  return { found: false };
})()`

// findTargets runs the finder script scoped to one strategy's containers
func findTargets(page browser.Page, spec StrategySpec) (*findResult, error) {
	scopes := spec.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scopes for %s: %w", spec.Name, err)
	}

	var result findResult
	if err := page.Evaluate(fmt.Sprintf(finderScript, string(scopesJSON)), &result); err != nil {
		return nil, fmt.Errorf("finder script failed for %s: %w", spec.Name, err)
	}
	return &result, nil
}
