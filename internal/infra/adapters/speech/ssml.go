package speech

import (
	"bytes"
	"encoding/xml"

	"snipr-audio/internal/domain/ports/adapter"
)

const ssmlNamespace = "http://www.w3.org/2001/10/synthesis"

// BuildSSML wraps text in a speak/voice/prosody envelope. Text and attribute
// values are XML-escaped.
func BuildSSML(text string, voice adapter.Voice) string {
	var b bytes.Buffer
	b.WriteString(`<speak version="1.0" xmlns="` + ssmlNamespace + `" xml:lang="`)
	escape(&b, voice.Language)
	b.WriteString(`"><voice name="`)
	escape(&b, voice.VoiceID)
	b.WriteString(`"><prosody pitch="`)
	escape(&b, voice.Pitch)
	b.WriteString(`" rate="`)
	escape(&b, voice.Rate)
	b.WriteString(`">`)
	escape(&b, text)
	b.WriteString(`</prosody></voice></speak>`)
	return b.String()
}

func escape(b *bytes.Buffer, s string) {
	_ = xml.EscapeText(b, []byte(s))
}
