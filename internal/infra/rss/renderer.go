// Package rss renders a UserFeed as an RSS 2.0 document with iTunes podcast
// extensions.
package rss

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"snipr-audio/internal/domain/model"
)

const (
	ContentType = "application/rss+xml; charset=utf-8"
	// CacheControl is sent with every feed document.
	CacheControl = "public, max-age=300, stale-while-revalidate=600"

	defaultGenerator = "Snipr Audio Converter"
	defaultCategory  = "Personal"
)

// Renderer builds feed documents. It holds only static presentation settings;
// the output depends on the feed, selfURL and now alone.
type Renderer struct {
	Generator    string
	DefaultImage string
	Category     string
}

func NewRenderer(defaultImage string) *Renderer {
	return &Renderer{
		Generator:    defaultGenerator,
		DefaultImage: defaultImage,
		Category:     defaultCategory,
	}
}

// Render writes the feed. now only feeds lastBuildDate, so two renders of the
// same feed differ in that element at most.
func (r *Renderer) Render(feed *model.UserFeed, selfURL string, now time.Time) []byte {
	var buf bytes.Buffer
	name := feed.DisplayName

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	writeElement(&buf, "title", name+"'s Snipr Feed", 4)
	writeCDATA(&buf, "description", "Welcome to "+name+"'s personal audio feed! This is where you'll find all of "+
		name+"'s converted content from articles, books, and videos, transformed into audio for easy listening.", 4)
	writeElement(&buf, "link", selfURL, 4)
	writeElement(&buf, "language", "en-us", 4)
	writeElement(&buf, "copyright", "© "+strconv.Itoa(feed.CreatedAt.Year())+" "+name, 4)
	writeElement(&buf, "lastBuildDate", now.UTC().Format(time.RFC1123Z), 4)

	indent(&buf, 4)
	buf.WriteString(`<atom:link href="`)
	escape(&buf, selfURL)
	buf.WriteString(`" rel="self" type="application/rss+xml"/>` + "\n")

	writeElement(&buf, "itunes:author", name, 4)
	buf.WriteString("    <itunes:owner>\n")
	writeElement(&buf, "itunes:name", name, 6)
	writeElement(&buf, "itunes:email", feed.Email, 6)
	buf.WriteString("    </itunes:owner>\n")

	if img := r.image(feed); img != "" {
		indent(&buf, 4)
		buf.WriteString(`<itunes:image href="`)
		escape(&buf, img)
		buf.WriteString(`"/>` + "\n")
		buf.WriteString("    <image>\n")
		writeElement(&buf, "url", img, 6)
		writeElement(&buf, "title", name+"'s Snipr Feed", 6)
		writeElement(&buf, "link", selfURL, 6)
		buf.WriteString("    </image>\n")
	}

	writeCDATA(&buf, "itunes:summary", "This is "+name+"'s personal Snipr feed, where text content is transformed into audio for convenient listening.", 4)
	indent(&buf, 4)
	buf.WriteString(`<itunes:category text="`)
	escape(&buf, r.category())
	buf.WriteString(`"/>` + "\n")
	writeElement(&buf, "itunes:explicit", "false", 4)
	writeElement(&buf, "generator", r.generator(), 4)

	for _, e := range feed.SortedEntries() {
		writeItem(&buf, e)
	}

	buf.WriteString("  </channel>\n</rss>\n")
	return buf.Bytes()
}

func writeItem(buf *bytes.Buffer, e model.FeedEntry) {
	buf.WriteString("    <item>\n")
	writeElement(buf, "title", e.Title, 6)
	writeCDATA(buf, "description", e.Description, 6)
	writeCDATA(buf, "itunes:summary", e.Description, 6)
	if e.SourceLink != "" {
		writeElement(buf, "link", e.SourceLink, 6)
	}

	indent(buf, 6)
	buf.WriteString(`<enclosure url="`)
	escape(buf, e.AudioURL)
	buf.WriteString(`" length="`)
	buf.WriteString(strconv.FormatInt(e.LengthBytes, 10))
	buf.WriteString(`" type="` + model.AudioMIMEType + `"/>` + "\n")

	indent(buf, 6)
	buf.WriteString(`<guid isPermaLink="false">`)
	escape(buf, e.GUID)
	buf.WriteString("</guid>\n")

	writeElement(buf, "pubDate", e.PublishedAt.UTC().Format(time.RFC1123Z), 6)
	writeElement(buf, "itunes:duration", e.DurationLabel, 6)
	if e.Author != "" {
		writeElement(buf, "itunes:author", e.Author, 6)
	}
	if e.ImageURL != "" {
		indent(buf, 6)
		buf.WriteString(`<itunes:image href="`)
		escape(buf, e.ImageURL)
		buf.WriteString(`"/>` + "\n")
	}
	writeElement(buf, "itunes:explicit", strconv.FormatBool(e.Explicit), 6)
	buf.WriteString("    </item>\n")
}

func (r *Renderer) image(feed *model.UserFeed) string {
	if feed.ArtworkURL != "" {
		return feed.ArtworkURL
	}
	return r.DefaultImage
}

func (r *Renderer) generator() string {
	if r.Generator == "" {
		return defaultGenerator
	}
	return r.Generator
}

func (r *Renderer) category() string {
	if r.Category == "" {
		return defaultCategory
	}
	return r.Category
}

// writeElement writes an escaped element; empty content is skipped.
func writeElement(buf *bytes.Buffer, tag, content string, n int) {
	if content == "" {
		return
	}
	indent(buf, n)
	buf.WriteString("<" + tag + ">")
	escape(buf, content)
	buf.WriteString("</" + tag + ">\n")
}

// writeCDATA writes content verbatim in a CDATA section. A literal "]]>" is
// split across two sections so it cannot terminate the first one.
func writeCDATA(buf *bytes.Buffer, tag, content string, n int) {
	indent(buf, n)
	buf.WriteString("<" + tag + "><![CDATA[")
	buf.WriteString(strings.ReplaceAll(content, "]]>", "]]]]><![CDATA[>"))
	buf.WriteString("]]></" + tag + ">\n")
}

func escape(buf *bytes.Buffer, s string) {
	_ = xml.EscapeText(buf, []byte(s))
}

func indent(buf *bytes.Buffer, n int) {
	for i := 0; i < n; i++ {
		buf.WriteByte(' ')
	}
}
