package extract

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

var errTrailingData = errors.New("unexpected data after top-level JSON value")

type jsonFrame struct {
	object    bool
	expectKey bool
}

// walkJSONStrings visits every string value (object keys excluded) of the
// JSON document in text, in document order. Nothing is visited unless the
// whole document is well formed.
func walkJSONStrings(text string, visit func(string)) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var (
		stack    []*jsonFrame
		leaves   []string
		complete bool
	)
	valueDone := func() {
		if len(stack) == 0 {
			complete = true
			return
		}
		if top := stack[len(stack)-1]; top.object {
			top.expectKey = true
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if complete {
			return errTrailingData
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				if len(stack) > 0 {
					if top := stack[len(stack)-1]; top.object {
						top.expectKey = true
					}
				}
				stack = append(stack, &jsonFrame{object: t == '{', expectKey: t == '{'})
			case '}', ']':
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					complete = true
				}
			}
		case string:
			if len(stack) > 0 {
				if top := stack[len(stack)-1]; top.object && top.expectKey {
					top.expectKey = false
					continue
				}
			}
			leaves = append(leaves, t)
			valueDone()
		default:
			valueDone()
		}
	}
	if !complete {
		return io.ErrUnexpectedEOF
	}

	for _, s := range leaves {
		visit(s)
	}
	return nil
}

// jsonLDContentURLs returns the contentUrl of every video object found under a
// "video" key of the top-level object, or of each top-level array element.
// Malformed JSON yields nothing.
func jsonLDContentURLs(text string) []string {
	var v any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &v); err != nil {
		return nil
	}

	var out []string
	contentURL := func(item any) {
		if m, ok := item.(map[string]any); ok {
			if u, ok := m["contentUrl"].(string); ok {
				out = append(out, u)
			}
		}
	}
	collect := func(obj map[string]any) {
		switch video := obj["video"].(type) {
		case map[string]any:
			contentURL(video)
		case []any:
			for _, item := range video {
				contentURL(item)
			}
		}
	}

	switch t := v.(type) {
	case map[string]any:
		collect(t)
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				collect(m)
			}
		}
	}
	return out
}
