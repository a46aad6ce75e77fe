// Command urtool bridges files and UR part streams: encode turns a
// payload into an animated sequence of ur: strings (optionally
// rendered as QR code frames), decode reassembles a stream of ur:
// strings back into the payload, and info describes a registry
// payload.
//
// Do not use for real funds or important secrets!
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/kortschak/qr"

	"bcur.dev/ur"
	"bcur.dev/urtypes"
)

var (
	encodeFlags  = flag.NewFlagSet("encode", flag.ExitOnError)
	encodeType   = encodeFlags.String("type", "bytes", "UR type of the payload")
	fragmentLen  = encodeFlags.Int("fragment", 100, "maximum fragment length in bytes")
	partCount    = encodeFlags.Int("parts", 0, "number of parts to emit (0 means 7/4 of the sequence count)")
	qrDir        = encodeFlags.String("qr", "", "directory to write QR code frames to")
	qrLevel      = encodeFlags.String("level", "M", "QR error correction level (L, M, Q, H)")
	decodeFlags  = flag.NewFlagSet("decode", flag.ExitOnError)
	decodeOutput = decodeFlags.String("o", "", "output file (default standard out)")
	infoFlags    = flag.NewFlagSet("info", flag.ExitOnError)
)

func main() {
	log.SetOutput(os.Stderr)
	if err := run(os.Stdout, os.Stdin, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "urtool: %v\n", err)
		os.Exit(2)
	}
}

func run(stdout io.Writer, stdin io.Reader, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command (encode, decode, info)")
	}
	cmd := args[0]
	args = args[1:]
	switch cmd {
	case "encode":
		if err := encodeFlags.Parse(args); err != nil {
			encodeFlags.Usage()
		}
		return encode(stdout, stdin, encodeFlags.Args())
	case "decode":
		if err := decodeFlags.Parse(args); err != nil {
			decodeFlags.Usage()
		}
		return decode(stdout, stdin)
	case "info":
		if err := infoFlags.Parse(args); err != nil {
			infoFlags.Usage()
		}
		return info(stdout, stdin)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func encode(stdout io.Writer, stdin io.Reader, args []string) error {
	message, err := readMessage(stdin, args)
	if err != nil {
		return err
	}
	enc, err := ur.NewEncoder(*encodeType, message, *fragmentLen)
	if err != nil {
		return err
	}
	count := *partCount
	if count == 0 {
		// Enough redundancy for a lossy channel to complete in one
		// pass, in expectation.
		count = enc.SequenceCount() * 7 / 4
		if count < 1 {
			count = 1
		}
	}
	level, err := parseLevel(*qrLevel)
	if err != nil {
		return err
	}
	log.Info("encoding", "bytes", len(message), "fragments", enc.SequenceCount(), "parts", count)
	w := bufio.NewWriter(stdout)
	for i := 0; i < count; i++ {
		part := enc.NextPart()
		if _, err := fmt.Fprintln(w, part); err != nil {
			return err
		}
		if *qrDir != "" {
			if err := writeFrame(*qrDir, i, part, level); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func writeFrame(dir string, i int, part string, level qr.Level) error {
	// Upper case selects the smaller QR alphanumeric mode.
	code, err := qr.Encode(strings.ToUpper(part), level)
	if err != nil {
		return fmt.Errorf("frame %d: %w", i, err)
	}
	const scale = 4
	const quiet = 4 * scale
	dim := code.Size*scale + 2*quiet
	img := image.NewGray(image.Rect(0, 0, dim, dim))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	for y := 0; y < code.Size; y++ {
		for x := 0; x < code.Size; x++ {
			if !code.Black(x, y) {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetGray(quiet+x*scale+dx, quiet+y*scale+dy, color.Gray{})
				}
			}
		}
	}
	name := filepath.Join(dir, fmt.Sprintf("frame-%03d.png", i))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseLevel(s string) (qr.Level, error) {
	switch s {
	case "L":
		return qr.L, nil
	case "M":
		return qr.M, nil
	case "Q":
		return qr.Q, nil
	case "H":
		return qr.H, nil
	default:
		return 0, fmt.Errorf("unknown QR level %q", s)
	}
}

func decode(stdout io.Writer, stdin io.Reader) error {
	typ, message, err := scan(stdin)
	if err != nil {
		return err
	}
	log.Info("decoded", "type", typ, "bytes", len(message))
	out := stdout
	if *decodeOutput != "" {
		f, err := os.Create(*decodeOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	_, err = out.Write(message)
	return err
}

func info(stdout io.Writer, stdin io.Reader) error {
	typ, message, err := scan(stdin)
	if err != nil {
		return err
	}
	v, err := urtypes.Parse(typ, message)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s: %v\n", typ, describe(v))
	return err
}

func describe(v any) string {
	switch v := v.(type) {
	case []byte:
		return fmt.Sprintf("%d bytes", len(v))
	case urtypes.Seed:
		return fmt.Sprintf("%d bytes of entropy", len(v.Payload))
	case urtypes.KeyDescriptor:
		return v.String()
	case urtypes.OutputDescriptor:
		keys := make([]string, 0, len(v.Keys))
		for _, k := range v.Keys {
			keys = append(keys, k.String())
		}
		return fmt.Sprintf("%s %d-of-%d %s", v.Script, v.Threshold, len(v.Keys), strings.Join(keys, " "))
	case urtypes.Address:
		if addr, err := v.BitcoinAddress(); err == nil {
			return addr.String()
		}
		return fmt.Sprintf("%x", v.Data)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// scan feeds ur: strings from r into a decoder until the message
// completes. QR scanners deliver upper case; the envelope grammar is
// lower case.
func scan(r io.Reader) (string, []byte, error) {
	var d ur.Decoder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		if err := d.Receive(line); err != nil {
			log.Warn("part rejected", "err", err)
			continue
		}
		log.Info("part received",
			"count", d.ReceivedPartCount(),
			"progress", fmt.Sprintf("%d%%", int(d.EstimatedPercentComplete()*100)))
		if d.Complete() {
			return d.Message()
		}
	}
	if err := scanner.Err(); err != nil {
		return "", nil, err
	}
	if d.Complete() {
		return d.Message()
	}
	return "", nil, errors.New("input ended before the message completed")
}

func readMessage(stdin io.Reader, args []string) ([]byte, error) {
	switch len(args) {
	case 0:
		return io.ReadAll(stdin)
	case 1:
		return os.ReadFile(args[0])
	default:
		return nil, errors.New("too many arguments")
	}
}
