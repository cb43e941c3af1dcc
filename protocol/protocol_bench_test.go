package protocol

import (
	"bytes"
	"strconv"
	"testing"
)

// BenchmarkReaderParseBulkString benchmarks parsing bulk strings
func BenchmarkReaderParseBulkString(b *testing.B) {
	sizes := []struct {
		name string
		data []byte
	}{
		{"Small_16B", bytes.Repeat([]byte("x"), 16)},
		{"Medium_1KB", bytes.Repeat([]byte("x"), 1024)},
		{"Large_64KB", bytes.Repeat([]byte("x"), 64*1024)},
	}

	for _, size := range sizes {
		b.Run(size.name, func(b *testing.B) {
			var buf bytes.Buffer
			buf.WriteString("$")
			buf.WriteString(strconv.Itoa(len(size.data)))
			buf.WriteString("\r\n")
			buf.Write(size.data)
			buf.WriteString("\r\n")
			input := buf.Bytes()

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(len(size.data)))

			for i := 0; i < b.N; i++ {
				r := NewReader(bytes.NewReader(input))
				if _, err := r.ReadNext(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkReaderReadCommand benchmarks decoding common write commands
func BenchmarkReaderReadCommand(b *testing.B) {
	commands := []struct {
		name  string
		input []byte
	}{
		{
			name:  "SET",
			input: []byte("*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"),
		},
		{
			name:  "SET_EX",
			input: []byte("*5\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n$2\r\nEX\r\n$2\r\n60\r\n"),
		},
		{
			name:  "HSET",
			input: []byte("*4\r\n$4\r\nHSET\r\n$1\r\nh\r\n$5\r\nfield\r\n$5\r\nvalue\r\n"),
		},
	}

	for _, cmd := range commands {
		b.Run(cmd.name, func(b *testing.B) {
			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				r := NewReader(bytes.NewReader(cmd.input))
				if _, err := r.ReadCommand(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkReaderCommandBatch benchmarks a replication stream of SETs
func BenchmarkReaderCommandBatch(b *testing.B) {
	for _, size := range []int{10, 100} {
		b.Run("SET_"+strconv.Itoa(size), func(b *testing.B) {
			var buf bytes.Buffer
			w := NewWriter(&buf)
			for i := 0; i < size; i++ {
				if err := w.WriteCommand("SET", "key"+strconv.Itoa(i), "value"); err != nil {
					b.Fatal(err)
				}
			}
			if err := w.Flush(); err != nil {
				b.Fatal(err)
			}
			batch := buf.Bytes()

			b.ResetTimer()
			b.ReportAllocs()
			b.SetBytes(int64(len(batch)))

			for i := 0; i < b.N; i++ {
				r := NewReader(bytes.NewReader(batch))
				for j := 0; j < size; j++ {
					if _, err := r.ReadCommand(); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}

// BenchmarkWriterCommand benchmarks writing handshake commands
func BenchmarkWriterCommand(b *testing.B) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := w.WriteCommand("REPLCONF", "ACK", "123456"); err != nil {
			b.Fatal(err)
		}
		if err := w.Flush(); err != nil {
			b.Fatal(err)
		}
	}
}
