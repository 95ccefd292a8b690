package mediaapi

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestClassifyMIME(t *testing.T) {
	cases := map[string]FileType{
		"image/png":       FileTypeImage,
		"IMAGE/JPEG":      FileTypeImage,
		"video/mp4":       FileTypeVideo,
		"audio/mpeg":      FileTypeAudio,
		"application/pdf": FileTypeDocument,
		"":                FileTypeDocument,
	}
	for in, want := range cases {
		if got := ClassifyMIME(in); got != want {
			t.Errorf("ClassifyMIME(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	if ClampLimit(0) != DefaultSearchLimit {
		t.Error("expected default for zero")
	}
	if ClampLimit(500) != MaxSearchLimit {
		t.Error("expected clamp to max")
	}
	if ClampLimit(7) != 7 {
		t.Error("expected passthrough")
	}
}

func TestNewBulkResponse_Counts(t *testing.T) {
	resp := NewBulkResponse([]ItemResult{
		{ID: "a", Success: true},
		{ID: "b", Success: false, Error: "no preview"},
		{ID: "c", Success: true},
	})
	if resp.Succeeded != 2 || resp.Failed != 1 {
		t.Errorf("unexpected counts %d/%d", resp.Succeeded, resp.Failed)
	}
	if !resp.Success {
		t.Error("a processed batch reports success even with item failures")
	}
	if empty := NewBulkResponse(nil); empty.Results == nil || !empty.Success {
		t.Errorf("empty bulk should be a successful empty list: %+v", empty)
	}
}

func TestRequestBodiesUseCamelCase(t *testing.T) {
	body, _ := json.Marshal(ReorderRequest{EntityType: "muscle", EntityID: "42", OrderedIDs: []string{"b", "a"}})
	if !strings.Contains(string(body), `"orderedIds":["b","a"]`) || !strings.Contains(string(body), `"entityId":"42"`) {
		t.Errorf("unexpected reorder body %s", body)
	}
	body, _ = json.Marshal(LinkRequest{MediaFileID: "f1", EntityType: "organ", EntityID: "7", RelationType: RelationPrimary})
	if !strings.Contains(string(body), `"mediaFileId":"f1"`) {
		t.Errorf("unexpected link body %s", body)
	}
}

func TestUpdateMetadataRequest_OmitsUnsetFields(t *testing.T) {
	w := 640
	body, _ := json.Marshal(UpdateMetadataRequest{Width: &w})
	if string(body) != `{"width":640}` {
		t.Errorf("unexpected body %s", body)
	}
	if (UpdateMetadataRequest{}).Empty() != true {
		t.Error("zero request should be empty")
	}
	if got := (UpdateMetadataRequest{Width: &w}).Fields(); len(got) != 1 || got[0] != "width" {
		t.Errorf("unexpected fields %v", got)
	}
}
