// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package markup converts the assistant's markdown into Telegram's
// HTML message format. The input is parsed into a typed AST and walked
// directly; literal text is escaped at the moment it is emitted, so
// code content containing angle brackets or ampersands can never be
// misread as markup and markup can never leak out of code. There are
// no placeholder tokens to collide with message content.
package markup

import (
	"html"
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// parserInstance is initialized once and reused. The parser
// configuration never changes and the goldmark Parser is safe to
// share — per-call state is created by Parse(reader).
var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once
)

func getParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
			),
		)
	})
	return parserInstance
}

// ToTelegramHTML renders markdown as Telegram HTML: <b>, <i>, <s>,
// <code>, <pre><code class="language-x">, and <a href>. Structure
// Telegram has no element for (headings, lists, quotes, rules) is
// flattened to styled text. The result contains no unescaped literal
// "<" or "&" outside the generated tags.
func ToTelegramHTML(input string) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	reader := text.NewReader(source)
	document := getParser().Parser().Parse(reader)

	renderer := &telegramRenderer{source: source}
	_ = ast.Walk(document, renderer.walk)
	return strings.TrimRight(renderer.output.String(), "\n")
}

// telegramRenderer walks a goldmark AST and accumulates Telegram HTML.
// A direct ast.Walk fits better than goldmark's renderer interface
// here: the output is linear text with only a handful of inline tags,
// and block separation needs lookback at what was already emitted.
type telegramRenderer struct {
	source []byte
	output strings.Builder

	// listDepth tracks nesting for bullet indentation; listIndex holds
	// the running item number per ordered-list level (0 for unordered).
	listDepth int
	listIndex []int
}

func (r *telegramRenderer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch typed := node.(type) {
	case *ast.Document:
		return ast.WalkContinue, nil

	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			r.blockSeparator(node)
		}
		return ast.WalkContinue, nil

	case *ast.Heading:
		if entering {
			r.blockSeparator(node)
			r.output.WriteString("<b>")
		} else {
			r.output.WriteString("</b>")
		}
		return ast.WalkContinue, nil

	case *ast.ThematicBreak:
		if entering {
			r.blockSeparator(node)
			r.output.WriteString("———")
		}
		return ast.WalkContinue, nil

	case *ast.Blockquote:
		// Telegram has no quote element in the HTML subset the bot API
		// accepts everywhere; render the quoted content in italics.
		if entering {
			r.blockSeparator(node)
			r.output.WriteString("<i>")
		} else {
			r.output.WriteString("</i>")
		}
		return ast.WalkContinue, nil

	case *ast.FencedCodeBlock:
		if entering {
			r.blockSeparator(node)
			r.writeCodeBlock(typed.Language(r.source), typed.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			r.blockSeparator(node)
			r.writeCodeBlock(nil, typed.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			r.blockSeparator(node)
			r.listDepth++
			start := 0
			if typed.IsOrdered() {
				start = typed.Start
				if start == 0 {
					start = 1
				}
			}
			r.listIndex = append(r.listIndex, start)
		} else {
			r.listDepth--
			r.listIndex = r.listIndex[:len(r.listIndex)-1]
		}
		return ast.WalkContinue, nil

	case *ast.ListItem:
		if entering {
			r.blockSeparator(node)
			r.output.WriteString(strings.Repeat("  ", r.listDepth-1))
			level := len(r.listIndex) - 1
			if r.listIndex[level] > 0 {
				r.output.WriteString(strconv.Itoa(r.listIndex[level]) + ". ")
				r.listIndex[level]++
			} else {
				r.output.WriteString("• ")
			}
		}
		return ast.WalkContinue, nil

	case *ast.Emphasis:
		tag := "i"
		if typed.Level == 2 {
			tag = "b"
		}
		if entering {
			r.output.WriteString("<" + tag + ">")
		} else {
			r.output.WriteString("</" + tag + ">")
		}
		return ast.WalkContinue, nil

	case *extast.Strikethrough:
		if entering {
			r.output.WriteString("<s>")
		} else {
			r.output.WriteString("</s>")
		}
		return ast.WalkContinue, nil

	case *extast.Table:
		// No table element; rows flatten to cell text separated by
		// spaces, one row per line.
		if entering {
			r.blockSeparator(node)
		}
		return ast.WalkContinue, nil

	case *extast.TableRow, *extast.TableHeader:
		if !entering {
			r.output.WriteString("\n")
		}
		return ast.WalkContinue, nil

	case *extast.TableCell:
		if !entering && node.NextSibling() != nil {
			r.output.WriteString("  ")
		}
		return ast.WalkContinue, nil

	case *extast.TaskCheckBox:
		if entering {
			if typed.IsChecked {
				r.output.WriteString("☑ ")
			} else {
				r.output.WriteString("☐ ")
			}
		}
		return ast.WalkContinue, nil

	case *ast.CodeSpan:
		if entering {
			r.output.WriteString("<code>")
		} else {
			r.output.WriteString("</code>")
		}
		return ast.WalkContinue, nil

	case *ast.Link:
		if entering {
			r.output.WriteString(`<a href="` + html.EscapeString(string(typed.Destination)) + `">`)
		} else {
			r.output.WriteString("</a>")
		}
		return ast.WalkContinue, nil

	case *ast.AutoLink:
		if entering {
			url := string(typed.URL(r.source))
			r.output.WriteString(`<a href="` + html.EscapeString(url) + `">` +
				html.EscapeString(url) + "</a>")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Image:
		// No inline images in text messages; emit the alt text.
		return ast.WalkContinue, nil

	case *ast.RawHTML:
		// Literal HTML in the source is content, not markup.
		if entering {
			r.writeSegments(typed.Segments)
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		if entering {
			r.blockSeparator(node)
			r.writeSegments(typed.Lines())
		}
		return ast.WalkSkipChildren, nil

	case *ast.Text:
		if entering {
			r.output.WriteString(html.EscapeString(string(typed.Segment.Value(r.source))))
			if typed.HardLineBreak() || typed.SoftLineBreak() {
				r.output.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil

	case *ast.String:
		if entering {
			r.output.WriteString(html.EscapeString(string(typed.Value)))
		}
		return ast.WalkContinue, nil
	}

	return ast.WalkContinue, nil
}

// blockSeparator writes the blank line between top-level blocks, or a
// single newline between list items. Nothing is written before the
// first block, or for the block that opens a container (a list item's
// first paragraph continues the bullet line, a quote's first paragraph
// follows the opening tag directly).
func (r *telegramRenderer) blockSeparator(node ast.Node) {
	if r.output.Len() == 0 {
		return
	}
	if parent := node.Parent(); parent != nil &&
		parent.Kind() != ast.KindDocument && node.PreviousSibling() == nil {
		return
	}
	if node.Kind() == ast.KindListItem || insideList(node) {
		r.output.WriteString("\n")
		return
	}
	r.output.WriteString("\n\n")
}

func insideList(node ast.Node) bool {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		if parent.Kind() == ast.KindList {
			return true
		}
	}
	return false
}

// writeCodeBlock emits a fenced or indented code block as
// <pre><code>, carrying the language tag in the class attribute the
// way Telegram expects. Content is escaped line by line.
func (r *telegramRenderer) writeCodeBlock(language []byte, lines *text.Segments) {
	if len(language) > 0 {
		r.output.WriteString(`<pre><code class="language-` +
			html.EscapeString(string(language)) + `">`)
	} else {
		r.output.WriteString("<pre><code>")
	}
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		r.output.WriteString(html.EscapeString(string(segment.Value(r.source))))
	}
	r.output.WriteString("</code></pre>")
}

// writeSegments emits raw source segments as escaped literal text.
func (r *telegramRenderer) writeSegments(segments *text.Segments) {
	for i := 0; i < segments.Len(); i++ {
		segment := segments.At(i)
		r.output.WriteString(html.EscapeString(string(segment.Value(r.source))))
	}
}
