package utils

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddrFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "http://localhost:8090/api", want: "localhost:8090"},
		{url: "https://telemetry.example.com", want: "telemetry.example.com:443"},
		{url: "http://telemetry.example.com/", want: "telemetry.example.com:80"},
		{url: "http://[::1]:9000", want: "[::1]:9000"},
		{url: "ftp://host", want: ""},
		{url: "::::", want: ""},
		{url: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, AddrFromURL(tt.url))
		})
	}
}

func TestWaitForHTTPResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	require.NoError(t, WaitForHTTPResponse(context.Background(), ts.URL, time.Second))
}

func TestWaitForTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, WaitForTCP(context.Background(), addr, time.Second))

	l.Close()
	assert.Error(t, WaitForTCP(context.Background(), addr, 300*time.Millisecond))
}

func TestWaitCancelled(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, WaitForTCP(ctx, addr, time.Minute), context.Canceled)
}
