package app

import (
	"context"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/hip_feedback/internal/config"
)

// RunConsoleMQTT prints every record published on TOPIC_HIP_ANGLE to out
// until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	token := client.Subscribe(cfg.TopicHipAngle, 0, func(_ mqtt.Client, msg mqtt.Message) {
		rec, err := DecodeRecord(msg.Payload())
		if err != nil {
			log.Printf("console: record unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(out, FormatRecord(rec))
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicHipAngle)

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}

// FormatRecord renders a record as one console line.
func FormatRecord(r AngleRecord) string {
	return fmt.Sprintf(
		"[HIP] t=%8.2fs  HIP_EXT=%7.2f  MIN(%6.1f)=%s  MAX(%6.1f)=%s  cal#%d",
		r.Time, r.HipExt, r.MinThreshold, onOff(r.MinFeedbackState), r.MaxThreshold, onOff(r.MaxFeedbackState), r.CalibrationGeneration,
	)
}
