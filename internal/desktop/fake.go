package desktop

import (
	"image"
	"sync"
	"time"
)

// Fake is a scriptable in-memory IO for tests. OCRText maps region keys
// ("x0,y0,x1,y1") to the text OCR should return; the Ops slice records every
// call in order.
type Fake struct {
	mu        sync.Mutex
	Clipboard string
	OCRText   map[string]string
	Ops       []string

	ClipboardErr error
}

func NewFake() *Fake {
	return &Fake{OCRText: map[string]string{}}
}

func (f *Fake) record(op string) {
	f.Ops = append(f.Ops, op)
}

// regionKey identifies a screenshot region for OCR scripting.
func regionKey(r image.Rectangle) string {
	return keyOf(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}

func keyOf(x0, y0, x1, y1 int) string {
	return itoa(x0) + "," + itoa(y0) + "," + itoa(x1) + "," + itoa(y1)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (f *Fake) Screenshot(rect image.Rectangle) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("screenshot " + regionKey(rect))
	img := image.NewRGBA(rect)
	return img, nil
}

func (f *Fake) OCR(img image.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if img == nil || img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		f.record("ocr empty")
		return "", nil
	}
	key := regionKey(img.Bounds())
	f.record("ocr " + key)
	return f.OCRText[key], nil
}

func (f *Fake) ReadClipboard() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read_clipboard")
	if f.ClipboardErr != nil {
		return "", f.ClipboardErr
	}
	return f.Clipboard, nil
}

func (f *Fake) WriteClipboard(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("write_clipboard " + text)
	if f.ClipboardErr != nil {
		return f.ClipboardErr
	}
	f.Clipboard = text
	return nil
}

func (f *Fake) Click(x, y int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("click " + itoa(x) + "," + itoa(y))
	return nil
}

func (f *Fake) TypeText(s string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("type " + s)
	return nil
}

func (f *Fake) KeyCombo(combo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("key " + combo)
	return nil
}

func (f *Fake) SetFailsafe(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if enabled {
		f.record("failsafe on")
	} else {
		f.record("failsafe off")
	}
	return nil
}

func (f *Fake) ReleaseModifiers() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("release_modifiers")
	return nil
}

// OpLog returns a copy of the recorded operations.
func (f *Fake) OpLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Ops))
	copy(out, f.Ops)
	return out
}
