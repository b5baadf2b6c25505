package exercisepage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const feedbackHTML = `<html><head><title>ignored</title>
<meta name="status" value="accepted">
<meta name="points" value="8">
<meta name="max-points" value="10">
<link rel="stylesheet" href="/static/ex.css">
</head><body><nav>menu</nav><div id="exercise"><p class="lead">Well done</p><script>alert(1)</script><form method="post"><input type="text" name="answer"></form></div></body></html>`

func TestParseExtractsHeadContentAndMeta(t *testing.T) {
	page, err := Parse(strings.NewReader(feedbackHTML), ContentPolicy())
	require.NoError(t, err)

	require.True(t, page.IsLoaded)
	require.True(t, page.IsAccepted)
	require.True(t, page.HasPoints)
	require.Equal(t, 8, page.Points)
	require.Equal(t, 10, page.MaxPoints)
	require.NotContains(t, page.Head, "ignored")
	require.Contains(t, page.Head, "ex.css")
	require.Contains(t, page.Content, `<p class="lead">Well done</p>`)
	require.Contains(t, page.Content, `name="answer"`)
	require.NotContains(t, page.Content, "alert(1)")
	require.NotContains(t, page.Content, "menu")
}

func TestParseFallsBackToBody(t *testing.T) {
	page, err := Parse(strings.NewReader(`<html><body><h1>Task</h1></body></html>`), nil)
	require.NoError(t, err)
	require.Equal(t, "<h1>Task</h1>", page.Content)
	require.False(t, page.IsAccepted)
}

func TestClientPostSendsFormAndFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "42", r.FormValue("answer"))
		file, header, err := r.FormFile("content_0")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "grader.py", header.Filename)
		require.Equal(t, "print(1)", string(data))
		_, _ = w.Write([]byte(feedbackHTML))
	}))
	defer server.Close()

	client := New(time.Second, zerolog.Nop())
	page, err := client.Post(context.Background(), server.URL, url.Values{"answer": {"42"}}, []Attachment{
		{Field: "content_0", Filename: "grader.py", ContentType: "text/plain", Data: []byte("print(1)")},
	})
	require.NoError(t, err)
	require.Equal(t, 8, page.Points)
	require.Equal(t, server.URL, page.URL)
}

func TestClientFetchReportsServiceErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(time.Second, zerolog.Nop())
	_, err := client.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
}
