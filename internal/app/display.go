package app

import (
	"context"
	"fmt"
	"image"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/hip_feedback/internal/feedback"
)

const (
	displayW = 128
	displayH = 64
)

// Display shows the latest hip angle and feedback states on an SSD1306
// OLED.
type Display struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

// OpenDisplay opens the I²C bus (empty name picks the first bus) and
// initializes the panel.
func OpenDisplay(busName string) (*Display, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized on %s", bus)

	d := &Display{bus: bus, dev: dev}
	if err := d.draw(renderSplash()); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return d, nil
}

// Run redraws the latest record every interval until ctx is done.
func (d *Display) Run(ctx context.Context, hip *HipApp, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	var last AngleRecord
	drawn := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rec, ok := hip.Latest()
		if drawn && ok && rec == last {
			continue
		}
		if err := d.draw(renderRecord(rec, ok)); err != nil {
			log.Printf("display: error updating display: %v", err)
			continue
		}
		last, drawn = rec, ok
	}
}

// Close blanks the panel and releases the bus.
func (d *Display) Close() error {
	if err := d.dev.Halt(); err != nil {
		log.Printf("display: halt: %v", err)
	}
	return d.bus.Close()
}

func (d *Display) draw(img image.Image) error {
	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

// textFrame draws one line of 7x13 text per baseline.
func textFrame(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayW, displayH))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(line)
	}
	return img
}

func renderRecord(rec AngleRecord, haveData bool) *image1bit.VerticalLSB {
	if !haveData {
		return textFrame("", "Hip Feedback", "Waiting...")
	}
	return textFrame(
		fmt.Sprintf("HIP %+7.1f", rec.HipExt),
		fmt.Sprintf("MIN %+6.1f %s", rec.MinThreshold, onOff(rec.MinFeedbackState)),
		fmt.Sprintf("MAX %+6.1f %s", rec.MaxThreshold, onOff(rec.MaxFeedbackState)),
		fmt.Sprintf("t%7.1fs cal#%d", rec.Time, rec.CalibrationGeneration),
	)
}

func renderSplash() *image1bit.VerticalLSB {
	return textFrame("", " Hip Extension", "  Stand still", " to calibrate")
}

func onOff(s feedback.State) string {
	if s == feedback.On {
		return "ON"
	}
	return "off"
}
