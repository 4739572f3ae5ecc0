package datawrapper

import (
	"strconv"

	"github.com/segmentio/encoding/json"
)

const (
	FolderTypeTeam = "team"
	FolderTypeUser = "user"
)

// FolderID is a string on team roots and a number on regular folders, so it
// decodes both into a string.
type FolderID string

func (id *FolderID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FolderID(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FolderID(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

// FolderList is the response of the folder-listing endpoint.
type FolderList struct {
	List []*Folder `json:"list"`
}

// Folder is one node of the remote folder hierarchy. Nested folders and
// charts can both be absent.
type Folder struct {
	ID      FolderID     `json:"id"`
	Name    string       `json:"name"`
	Type    string       `json:"type"`
	Folders []*Folder    `json:"folders"`
	Charts  []*ChartStub `json:"charts"`
}

// ChartStub is the abbreviated chart entry inside a folder listing.
type ChartStub struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	CreatedAt      string `json:"createdAt"`
	LastModifiedAt string `json:"lastModifiedAt"`
}

// ChartDetail is the expanded chart payload.
type ChartDetail struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	PublicURL      string   `json:"publicUrl"`
	PublishedAt    *string  `json:"publishedAt"`
	LastModifiedAt string   `json:"lastModifiedAt"`
	Metadata       Metadata `json:"metadata"`
}

type Metadata struct {
	Describe Describe     `json:"describe"`
	Annotate Annotate     `json:"annotate"`
	Publish  Publish      `json:"publish"`
	Custom   CustomFields `json:"custom"`
}

type Describe struct {
	Intro string `json:"intro"`
	Notes string `json:"notes"`
}

type Annotate struct {
	Notes string `json:"notes"`
}

type Publish struct {
	EmbedCodes      map[string]string `json:"embed-codes"`
	Embed           string            `json:"embed"`
	EmbedResponsive string            `json:"embed-responsive"`
}

// CustomFields holds the team's custom metadata fields. The remote stores
// them untyped (strings, booleans, numbers), so everything is coerced to a
// string here, once, and nowhere downstream.
type CustomFields map[string]string

func (cf *CustomFields) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields := make(CustomFields, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			fields[k] = val
		case bool:
			fields[k] = strconv.FormatBool(val)
		case float64:
			fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			// Nested objects are not custom fields.
			continue
		}
	}
	*cf = fields
	return nil
}
