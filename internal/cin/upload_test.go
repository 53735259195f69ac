package cin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() capture.UploadPayload {
	return capture.UploadPayload{
		FieldName:   capture.UploadFieldName,
		Filename:    "file_12.jpg",
		ContentType: capture.UploadContentType,
		Data:        []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3},
	}
}

// makeUploadServer mimics the extraction service: it reads the "image" form
// file and answers with the given status and body.
func makeUploadServer(t *testing.T, status int, body string, onRequest func(r *http.Request, filename, contentType string, data []byte)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != UploadPath || r.Method != http.MethodPost {
			t.Errorf("invalid request to test server: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("no image field: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if onRequest != nil {
			onRequest(r, header.Filename, header.Header.Get("Content-Type"), data)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestUploadCIN_Created(t *testing.T) {
	var gotFilename, gotContentType, gotRequestType string
	var gotData []byte
	ts := makeUploadServer(t, http.StatusCreated, `{"nom":"DUPONT"}`, func(r *http.Request, filename, contentType string, data []byte) {
		gotFilename = filename
		gotContentType = contentType
		gotData = data
		gotRequestType = r.Header.Get("Content-Type")
	})
	defer ts.Close()

	client := NewUploadClient(ClientOpts{BaseURL: ts.URL})
	result, err := client.UploadCIN(context.Background(), testPayload())
	require.NoError(t, err)

	assert.Equal(t, capture.ExtractionResult{"nom": "DUPONT"}, result)
	assert.Equal(t, "file_12.jpg", gotFilename)
	assert.Equal(t, "image/jpeg", gotContentType)
	assert.Equal(t, testPayload().Data, gotData)
	assert.True(t, strings.HasPrefix(gotRequestType, "multipart/form-data"))
}

func TestUploadCIN_OpenEndedKeys(t *testing.T) {
	body := `{"ddn":"01/01/1990","nom":"DUPONT","prenom":"Jean","numcin":12345678,"ville":"Tunis","verified":true,"extra":null}`
	ts := makeUploadServer(t, http.StatusCreated, body, nil)
	defer ts.Close()

	result, err := NewUploadClient(ClientOpts{BaseURL: ts.URL}).UploadCIN(context.Background(), testPayload())
	require.NoError(t, err)

	assert.Equal(t, capture.ExtractionResult{
		"ddn":      "01/01/1990",
		"nom":      "DUPONT",
		"prenom":   "Jean",
		"numcin":   "12345678",
		"ville":    "Tunis",
		"verified": "true",
		"extra":    "",
	}, result)
}

func TestUploadCIN_RejectedWithMessage(t *testing.T) {
	ts := makeUploadServer(t, http.StatusBadRequest, `{"error":"bad image"}`, nil)
	defer ts.Close()

	_, err := NewUploadClient(ClientOpts{BaseURL: ts.URL}).UploadCIN(context.Background(), testPayload())

	var rejected *capture.UploadRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, 400, rejected.Status)
	assert.Equal(t, "bad image", rejected.Message)
}

func TestUploadCIN_OtherSuccessStatusIsRejected(t *testing.T) {
	ts := makeUploadServer(t, http.StatusOK, `{"nom":"DUPONT"}`, nil)
	defer ts.Close()

	_, err := NewUploadClient(ClientOpts{BaseURL: ts.URL}).UploadCIN(context.Background(), testPayload())

	var rejected *capture.UploadRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, 200, rejected.Status)
	assert.Empty(t, rejected.Message)
}

func TestUploadCIN_NoResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := NewUploadClient(ClientOpts{BaseURL: url}).UploadCIN(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, errors.Is(err, capture.ErrUploadFailed))
}

func TestUploadCIN_MalformedBody(t *testing.T) {
	ts := makeUploadServer(t, http.StatusCreated, `["nom","DUPONT"]`, nil)
	defer ts.Close()

	_, err := NewUploadClient(ClientOpts{BaseURL: ts.URL}).UploadCIN(context.Background(), testPayload())
	assert.True(t, errors.Is(err, ErrInvalidResult))
}
