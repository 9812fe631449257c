// Package request reads scheduling requests from YAML or JSON documents.
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

// Decoder validates documents before converting them.
type Decoder struct {
	validate *validator.Validate
	// Defaults, when set, fills unset constraints before the request is
	// validated.
	Defaults func(*model.SchedulingRequest)
}

// NewDecoder returns a Decoder reporting fields by their json name.
func NewDecoder() *Decoder {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Decoder{validate: v}
}

var std = NewDecoder()

// Decode reads a request document in the given format ("yaml" or "json").
func Decode(r io.Reader, format string) (model.SchedulingRequest, error) {
	return std.Decode(r, format)
}

// LoadFile reads a request document, picking the format from the extension.
func LoadFile(path string) (model.SchedulingRequest, error) {
	return std.LoadFile(path)
}

func (d *Decoder) LoadFile(path string) (model.SchedulingRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.SchedulingRequest{}, err
	}
	defer f.Close()
	return d.Decode(f, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Decode reads, validates and converts a document. Unknown fields are
// rejected. Every error wraps model.ErrInvalidRequest.
func (d *Decoder) Decode(r io.Reader, format string) (model.SchedulingRequest, error) {
	doc, err := d.DecodeDocument(r, format)
	if err != nil {
		return model.SchedulingRequest{}, err
	}
	req, err := doc.Request()
	if err != nil {
		return req, err
	}
	if d.Defaults != nil {
		d.Defaults(&req)
	}
	return req, req.Validate()
}

// DecodeDocument reads and validates a document without converting it.
func (d *Decoder) DecodeDocument(r io.Reader, format string) (Document, error) {
	var doc Document
	data, err := io.ReadAll(r)
	if err != nil {
		return doc, err
	}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		// yaml is normalized to json so the json tags of the model apply.
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return doc, model.Invalid("", "yaml: %v", err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return doc, model.Invalid("", "yaml: %v", err)
		}
	case "json":
	default:
		return doc, fmt.Errorf("unsupported format: %s", format)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return doc, model.Invalid("", "%v", err)
	}
	if err := d.validate.Struct(doc); err != nil {
		return doc, fieldError(err)
	}
	return doc, nil
}

// fieldError reports the first validation failure as an InvalidRequestError.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.Invalid("", "%v", err)
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Document.")
	if fe.Param() != "" {
		return model.Invalid(field, "failed %s=%s", fe.Tag(), fe.Param())
	}
	return model.Invalid(field, "failed %s", fe.Tag())
}
