package statemachine

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/model"
)

// MaxContentBytes bounds a single ConfigVersion's content. A package
// constant rather than a node-config knob: a per-node limit would let two
// replicas disagree about whether a committed command is valid.
const MaxContentBytes = 4 << 20 // 4 MiB

// validateContent checks a candidate ConfigVersion's content against its
// declared format, so a malformed upload is a per-entry negative response
// rather than landing in storage and surfacing only when read back.
// PROPERTIES and INI are accepted without structural validation; RAW is
// opaque by definition.
func validateContent(format model.Format, content []byte) error {
	if len(content) > MaxContentBytes {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "content exceeds max size %d bytes", MaxContentBytes)
	}
	if !model.ValidFormat(format) {
		return confluxerr.New(confluxerr.CodeInvalidArgument, "unknown format %q", format)
	}

	switch format {
	case model.FormatJSON:
		var v interface{}
		if err := json.Unmarshal(content, &v); err != nil {
			return confluxerr.Wrap(confluxerr.CodeInvalidArgument, err, "content is not valid JSON")
		}
	case model.FormatYAML:
		var v interface{}
		if err := yaml.Unmarshal(content, &v); err != nil {
			return confluxerr.Wrap(confluxerr.CodeInvalidArgument, err, "content is not valid YAML")
		}
	case model.FormatTOML:
		var v interface{}
		if err := toml.Unmarshal(content, &v); err != nil {
			return confluxerr.Wrap(confluxerr.CodeInvalidArgument, err, "content is not valid TOML")
		}
	case model.FormatXML:
		// xml.Unmarshal needs a concrete target type; well-formedness is
		// checked by walking the token stream instead.
		dec := xml.NewDecoder(bytes.NewReader(content))
		for {
			_, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				return confluxerr.Wrap(confluxerr.CodeInvalidArgument, err, "content is not valid XML")
			}
		}
	case model.FormatINI, model.FormatProperties, model.FormatRaw:
		// accepted as-is
	}
	return nil
}

// validateSchema is advisory: when a Config carries a schema string and
// its format is JSON, content must at least decode as JSON. Non-JSON
// formats or an absent schema skip the check entirely; full JSON-Schema
// evaluation belongs to the protocol layer, not the deterministic apply
// path.
func validateSchema(schema string, format model.Format, content []byte) error {
	if schema == "" || format != model.FormatJSON {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(content, &v); err != nil {
		return confluxerr.Wrap(confluxerr.CodeInvalidArgument, err, "content does not satisfy schema: not valid JSON")
	}
	return nil
}
