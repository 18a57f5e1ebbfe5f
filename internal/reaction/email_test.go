// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package reaction

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smtpSink accepts one SMTP session and returns the raw DATA payload.
func smtpSink(t *testing.T) (host string, port int, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb, _, _ := strings.Cut(strings.ToUpper(line), " ")
			switch verb {
			case "EHLO", "HELO", "MAIL", "RCPT":
				tp.PrintfLine("250 OK")
			case "DATA":
				tp.PrintfLine("354 go ahead")
				var raw strings.Builder
				for {
					l, err := tp.R.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					raw.WriteString(l)
				}
				out <- raw.String()
				tp.PrintfLine("250 queued")
			case "QUIT":
				tp.PrintfLine("221 bye")
				return
			default:
				tp.PrintfLine("502 %s not implemented", verb)
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, out
}

func TestSMTPSender_DeliversCRLFBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "lf", body: "line1\nline2"},
		{name: "crlf", body: "line1\r\nline2"},
		{name: "mixed", body: "line1\r\nline2\nline3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, data := smtpSink(t)
			sender := NewSMTPSender(SMTPConfig{Host: host, Port: port, From: "areas@example.com"})

			err := sender.Send(context.Background(), Email{To: "x@y.com", Subject: "Hi", Body: tt.body})
			require.NoError(t, err)

			var raw string
			select {
			case raw = <-data:
			case <-time.After(5 * time.Second):
				t.Fatal("no DATA received")
			}
			want := "\r\n\r\n" + strings.ReplaceAll(strings.ReplaceAll(tt.body, "\r\n", "\n"), "\n", "\r\n") + "\r\n"
			assert.True(t, strings.HasSuffix(raw, want), "payload %q", raw)
			assert.NotContains(t, raw, "\r\r")
		})
	}
}

func TestFormatEmail_NormalizesLineEndings(t *testing.T) {
	raw := string(formatEmail(Email{From: "a@b.c", To: "x@y.com", Body: "a\r\nb\nc\rd"}, time.Now()))
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\na\r\nb\r\nc\r\nd"), raw)
}

type deadlineConn struct {
	net.Conn
	closed bool
}

func (c *deadlineConn) SetDeadline(time.Time) error { return errors.New("deadline unsupported") }

func (c *deadlineConn) Close() error {
	c.closed = true
	return c.Conn.Close()
}

func TestSMTPSender_SetDeadlineErrorClosesConn(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := &deadlineConn{Conn: client}

	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "a@b.c"})
	sender.dial = func(context.Context, string, string) (net.Conn, error) { return conn, nil }

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := sender.Send(ctx, Email{To: "x@y.com"})
	assert.ErrorContains(t, err, "smtp set deadline")
	assert.True(t, conn.closed)
}
