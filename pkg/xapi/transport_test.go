package xapi

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXapiTransport_ReadFrame(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single line",
			input: "{\"status\":true}\n\n",
			want:  []string{`{"status":true}`},
		},
		{
			name:  "pretty printed",
			input: "{\n  \"a\": {\n    \"b\": 1\n  }\n}\n\n",
			want:  []string{"{\n  \"a\": {\n    \"b\": 1\n  }\n}"},
		},
		{
			name:  "blank line inside message",
			input: "{\n\n\"a\":1}\n\n",
			want:  []string{"{\n\n\"a\":1}"},
		},
		{
			name:  "crlf line endings",
			input: "{\"a\":1}\r\n\r\n",
			want:  []string{`{"a":1}`},
		},
		{
			name:  "back to back",
			input: "{\"a\":1}\n\n{\"b\":2}\n\n",
			want:  []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:  "leading blank lines",
			input: "\n\n{\"a\":1}\n\n",
			want:  []string{`{"a":1}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			for _, want := range tt.want {
				got, err := readFrame(r)
				require.NoError(t, err)
				assert.Equal(t, want, string(got))
			}
		})
	}
}

func TestXapiTransport_ReadFrameTruncated(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("{\"a\":1}\n"))
	_, err := readFrame(r)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestXapiTransport_FragmentedReads(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	tr := NewTLSTransport("127.0.0.1:0", nil)
	tr.attach(client)
	defer tr.Close()

	payload := "{\"command\":\"trade\",\n\"data\":{\"order\":1}}\n\n"
	go func() {
		for i := 0; i < len(payload); i += 3 {
			end := min(i+3, len(payload))
			if _, err := server.Write([]byte(payload[i:end])); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "{\"command\":\"trade\",\n\"data\":{\"order\":1}}", string(msg))
}

func TestXapiTransport_SendOnClosedFails(t *testing.T) {
	disconnects := 0
	client, server := net.Pipe()
	defer server.Close()

	tr := NewTLSTransport("127.0.0.1:0", func() { disconnects++ })
	tr.attach(client)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, disconnects)
	assert.False(t, tr.IsConnected())

	err := tr.Send(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrCommunication)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestXapiTransport_ReceiveCancelled(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	disconnected := make(chan struct{})
	tr := NewTLSTransport("127.0.0.1:0", func() { close(disconnected) })
	tr.attach(client)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Receive(ctx)
	assert.ErrorIs(t, err, ErrCommunication)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, tr.IsConnected())

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("disconnect callback not fired")
	}
}

func TestXapiTransport_TLSRoundTrip(t *testing.T) {
	cert, pool := selfSignedCert(t)
	addr := serveTLS(t, cert, func(conn net.Conn) {
		buf := make([]byte, 1024)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		_, _ = conn.Write(append(buf[:n], '\n', '\n'))
	})

	tr := NewTLSTransport(addr, nil, WithTLSConfig(&tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}))
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, tr.Send(ctx, []byte(`{"command":"ping"}`)))
	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"command":"ping"}`, string(msg))
}

func TestXapiTransport_TLSRejectsUntrustedCertificate(t *testing.T) {
	cert, _ := selfSignedCert(t)
	addr := serveTLS(t, cert, func(conn net.Conn) {
		_, _ = conn.Read(make([]byte, 1))
	})

	tr := NewTLSTransport(addr, nil, WithConnectTimeout(time.Second))
	err := tr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCommunication)
	assert.False(t, tr.IsConnected())
}

func TestXapiTransport_ConnectTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// accepts TCP but never completes the handshake
	tr := NewTLSTransport(ln.Addr().String(), nil, WithConnectTimeout(50*time.Millisecond))
	err = tr.Connect(context.Background())
	assert.ErrorIs(t, err, ErrCommunication)
}

func serveTLS(t *testing.T, cert tls.Certificate, handle func(net.Conn)) string {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	return ln.Addr().String()
}

func selfSignedCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}
