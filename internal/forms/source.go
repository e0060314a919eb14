package forms

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/DanielBronsky/cnpf-feeder/internal/models"
	"github.com/DanielBronsky/cnpf-feeder/internal/util"
)

// maxMultipartMemory is held in memory before parts spill to temp files.
const maxMultipartMemory = 8 << 20

// Source is a flat request body: multipart or urlencoded form fields, or the
// top-level scalars of a JSON object.
type Source struct {
	values map[string][]string
	files  map[string][]*multipart.FileHeader
	form   *multipart.Form
}

// ParseSource reads r's body according to its content type.
func ParseSource(r *http.Request) (*Source, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return nil, bodyError(err, "Invalid multipart body")
		}
		return &Source{values: r.MultipartForm.Value, files: r.MultipartForm.File, form: r.MultipartForm}, nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err, "Invalid form body")
		}
		return &Source{values: r.PostForm}, nil
	default:
		return parseJSONSource(r.Body)
	}
}

// bodyError keeps size-limit errors intact so callers can answer 413.
func bodyError(err error, msg string) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return err
	}
	return Invalid(msg)
}

func parseJSONSource(body io.Reader) (*Source, error) {
	var raw map[string]any
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, bodyError(err, "Invalid JSON body")
	}
	values := make(map[string][]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case string:
			values[k] = []string{t}
		case bool:
			values[k] = []string{strconv.FormatBool(t)}
		case float64:
			values[k] = []string{strconv.FormatFloat(t, 'f', -1, 64)}
		case []any:
			for _, item := range t {
				values[k] = append(values[k], fmt.Sprint(item))
			}
		}
	}
	return &Source{values: values}, nil
}

// Close removes temp files left by a multipart parse.
func (s *Source) Close() {
	if s.form != nil {
		s.form.RemoveAll()
	}
}

func (s *Source) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

func (s *Source) Get(key string) string {
	if v := s.values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (s *Source) All(key string) []string {
	return s.values[key]
}

// Files returns the uploads of key, skipping empty file inputs.
func (s *Source) Files(key string) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for _, fh := range s.files[key] {
		if fh.Size > 0 || fh.Filename != "" {
			out = append(out, fh)
		}
	}
	return out
}

// Flag reads a checkbox-like field.
func (s *Source) Flag(key string) bool {
	return util.ParseFlag(s.Get(key))
}

// readImage loads an uploaded image no larger than max bytes.
func readImage(fh *multipart.FileHeader, max int64) (models.Image, string) {
	ct := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		return models.Image{}, "must be an image"
	}
	if fh.Size > max {
		return models.Image{}, fmt.Sprintf("must be at most %s", humanSize(max))
	}
	f, err := fh.Open()
	if err != nil {
		return models.Image{}, "could not be read"
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return models.Image{}, "could not be read"
	}
	if int64(len(data)) > max {
		return models.Image{}, fmt.Sprintf("must be at most %s", humanSize(max))
	}
	return models.Image{ContentType: ct, Data: data}, ""
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
