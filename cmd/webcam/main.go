// Command webcam runs a detector on a capture device and draws the detections.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/engines"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

func main() {
	var (
		deviceID   = flag.Int("device", 0, "Video capture device")
		modelPath  = flag.String("model", "", "Path to the model file")
		preset     = flag.String("preset", string(model.ModelNameUltraFace), "Model preset")
		engineType = flag.String("engine", string(inference.EngineONNX), "Inference engine")
		headless   = flag.Bool("headless", false, "Log detections instead of opening a window")
	)
	flag.Parse()

	if *modelPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	os.Exit(stream(*deviceID, *modelPath, *preset, *engineType, *headless))
}

// stream runs the capture loop until the device fails or ESC is pressed and returns the
// exit code once every deferred release has run.
func stream(deviceID int, modelPath, preset, engineType string, headless bool) int {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	opts := engines.DefaultOptions()
	opts.Type = inference.EngineType(engineType)

	d, err := detector.NewBuilder().
		WithModel(model.NewModelArgs{Name: model.Name(preset), Path: modelPath}).
		WithEngineFactory(engines.Factory(opts, logger)).
		WithChannelOrder(engines.ChannelOrder(opts.Type)).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Error("failed to build detector", zap.Error(err))
		return 1
	}
	defer d.Close()

	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		logger.Error("cannot open capture device", zap.Int("device", deviceID), zap.Error(err))
		return 1
	}
	defer webcam.Close()

	var window *gocv.Window
	if !headless {
		window = gocv.NewWindow(fmt.Sprintf("%s detections", preset))
		defer window.Close()
	}

	frame := gocv.NewMat()
	defer frame.Close()

	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	logger.Info("reading camera", zap.Int("device", deviceID))
	for {
		if ok := webcam.Read(&frame); !ok {
			logger.Error("cannot read device", zap.Int("device", deviceID))
			return 1
		}
		if frame.Empty() {
			continue
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		img, err := frame.ToImage()
		if err != nil {
			logger.Warn("cannot convert frame", zap.Error(err))
			continue
		}

		ok, set, err := d.Evaluate(context.Background(), img)
		if err != nil {
			logger.Error("detection failed", zap.Error(err))
			continue
		}

		if window == nil {
			logger.Info("frame", zap.Int("detections", len(set)), zap.Bool("verdict", ok), zap.Float64("fps", fps))
			continue
		}

		annotate(&frame, d, set, ok, fps)
		window.IMShow(frame)
		if window.WaitKey(1) == 27 {
			return 0
		}
	}
}

var (
	blue  = color.RGBA{B: 255}
	green = color.RGBA{G: 255}
	red   = color.RGBA{R: 255}
)

// annotate draws boxes, labels and the verdict onto the frame in place.
func annotate(frame *gocv.Mat, d *detector.Detector, set postprocess.DetectionSet, verdict bool, fps float64) {
	for _, det := range set {
		r := det.Box.ToRectangle()
		gocv.Rectangle(frame, r, blue, 2)
		label := fmt.Sprintf("%s %.2f", d.Label(det.Class), det.Score)
		gocv.PutText(frame, label, image.Pt(r.Min.X, r.Min.Y-4), gocv.FontHersheyPlain, 1.2, blue, 2)
	}

	status, c := "no", red
	if verdict {
		status, c = "yes", green
	}
	gocv.PutText(frame, fmt.Sprintf("%s | %d found | %.1f FPS", status, len(set), fps), image.Pt(10, 20), gocv.FontHersheyPlain, 1.4, c, 2)
}
