package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foodlens/framelink/internal/app"
	"github.com/foodlens/framelink/internal/connectors"
	"github.com/foodlens/framelink/internal/device"
	"github.com/foodlens/framelink/internal/domain"
	"github.com/foodlens/framelink/internal/feed"
	"github.com/foodlens/framelink/internal/meallog"
	"github.com/foodlens/framelink/internal/mqttbridge"
	"github.com/foodlens/framelink/internal/transport"
)

type runtimeCommand func(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error

var runtimeCommands = map[string]runtimeCommand{
	"connect":  runConnect,
	"evaluate": runEvaluate,
	"script":   runScript,
	"stream":   runStream,
	"serve":    runServe,
	"history":  runHistory,
	"insights": runInsights,
	"similar":  runSimilar,
	"clear":    runClear,
	"watch":    runWatch,
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("framectl "+name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runConnect(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	if err := newFlagSet("connect", out).Parse(args); err != nil {
		return err
	}
	if err := rt.Connect(ctx); err != nil {
		return err
	}

	info := rt.Link.Info()
	fmt.Fprintf(out, "connected via %s (%s), firmware %s\n",
		rt.ConnectionTransport.Name(), rt.ConnectionTransport.StatusTarget(), info.Firmware)
	return nil
}

type evaluateFlags struct {
	app.EvaluateOptions
	Food    string
	Save    bool
	JSONOut bool
}

func parseEvaluateFlags(args []string, out io.Writer) (evaluateFlags, error) {
	var f evaluateFlags
	fs := newFlagSet("evaluate", out)
	fs.BoolVar(&f.LogMeal, "log", false, "record the meal in the meal log")
	fs.Float64Var(&f.Portion, "portion", 1, "portion multiplier for the meal log")
	fs.StringVar(&f.Context, "context", "", "meal context, e.g. Breakfast")
	fs.StringVar(&f.Location, "location", "", "where the meal was eaten")
	fs.StringVar(&f.Food, "food", "", "skip image classification and use this food name")
	fs.BoolVar(&f.Save, "save", false, "save the captured image")
	fs.BoolVar(&f.JSONOut, "json", false, "print the evaluation as JSON")
	if err := fs.Parse(args); err != nil {
		return evaluateFlags{}, err
	}
	if fs.NArg() > 0 {
		return evaluateFlags{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}

	return f, nil
}

func runEvaluate(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	f, err := parseEvaluateFlags(args, out)
	if err != nil {
		return err
	}
	if err := rt.Connect(ctx); err != nil {
		return err
	}

	evaluator := rt.Evaluator
	if food := strings.TrimSpace(f.Food); food != "" {
		var recorder app.MealRecorder
		if rt.MealLog != nil {
			recorder = rt.MealLog
		}
		classifier := app.FixedClassifier{Result: domain.Classification{FoodName: food, Confidence: 1, Source: "user"}}
		evaluator = app.NewEvaluator(rt.LogManager.Logger("evaluator"), rt.Dispatcher, classifier, app.DefaultNutritionCatalog(), recorder)
	}

	result, evalErr := evaluator.Evaluate(ctx, f.EvaluateOptions)
	if f.Save && len(result.Capture.Image) > 0 {
		path, err := saveCapture(rt.Paths.CapturesDir, result.Capture)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "capture saved to %s\n", path)
	}
	if evalErr != nil {
		return evalErr
	}

	if f.JSONOut {
		return writeJSON(out, evaluationView(result))
	}
	printEvaluation(out, result)
	return nil
}

func saveCapture(dir string, capture device.CaptureData) (string, error) {
	name := fmt.Sprintf("capture-%s.bmp", capture.Timestamp.UTC().Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, capture.Image, 0o600); err != nil {
		return "", fmt.Errorf("save capture: %w", err)
	}
	return path, nil
}

func runScript(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	fs := newFlagSet("script", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	source := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if source == "" {
		return fmt.Errorf("%w: script source is required", errUsage)
	}
	if err := rt.Connect(ctx); err != nil {
		return err
	}

	res := rt.Dispatcher.Send(ctx, device.NewScriptCommand(source))
	if !res.OK() {
		return res.Err
	}
	data, _ := res.Data.(device.ScriptData)
	for _, line := range data.Output {
		fmt.Fprintln(out, line)
	}
	return nil
}

type streamFlags struct {
	Sensor   string
	Duration time.Duration
	Count    int
}

func parseStreamFlags(args []string, out io.Writer) (streamFlags, error) {
	var f streamFlags
	fs := newFlagSet("stream", out)
	fs.StringVar(&f.Sensor, "sensor", "camera", "camera, microphone or both")
	fs.DurationVar(&f.Duration, "duration", 2*time.Second, "how long to stream")
	fs.IntVar(&f.Count, "count", 0, "stop after this many descriptors (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return streamFlags{}, err
	}
	switch f.Sensor {
	case "camera", "microphone", "both":
	default:
		return streamFlags{}, fmt.Errorf("%w: unknown sensor %q", errUsage, f.Sensor)
	}
	if f.Duration <= 0 {
		return streamFlags{}, fmt.Errorf("%w: duration must be positive", errUsage)
	}

	return f, nil
}

func runStream(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	f, err := parseStreamFlags(args, out)
	if err != nil {
		return err
	}
	if err := rt.Connect(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.Duration)
	defer cancel()

	var (
		mu       sync.Mutex
		emitted  int
		writeErr error
	)
	emit := func(v any) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil || (f.Count > 0 && emitted >= f.Count) {
			return
		}
		if err := writeJSONLine(out, v); err != nil {
			writeErr = fmt.Errorf("write descriptor: %w", err)
			cancel()
			return
		}
		emitted++
		if f.Count > 0 && emitted >= f.Count {
			cancel()
		}
	}

	var subs []*device.StreamSubscription
	if f.Sensor == "camera" || f.Sensor == "both" {
		sub, err := rt.Streams.StreamCamera(func(frame connectors.CameraFrame) { emit(frame) })
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}
	if f.Sensor == "microphone" || f.Sensor == "both" {
		sub, err := rt.Streams.StreamMicrophone(func(chunk connectors.AudioChunk) { emit(chunk) })
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	<-ctx.Done()
	for _, sub := range subs {
		sub.Cancel()
	}

	mu.Lock()
	defer mu.Unlock()
	return writeErr
}

func runServe(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	cfg := rt.CurrentConfig()
	fs := newFlagSet("serve", out)
	listen := fs.String("listen", cfg.Feed.ListenAddr, "feed listen address, e.g. :8080")
	broker := fs.String("broker", cfg.MQTT.Broker, "mqtt broker url, e.g. tcp://localhost:1883")
	noConnect := fs.Bool("no-connect", false, "do not connect to the glasses on start")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*listen) == "" && strings.TrimSpace(*broker) == "" {
		return fmt.Errorf("%w: nothing to serve, set -listen or -broker", errUsage)
	}

	g, ctx := errgroup.WithContext(ctx)
	if addr := strings.TrimSpace(*listen); addr != "" {
		server := feed.New(rt.Bus, feed.Options{
			Logger:  rt.LogManager.Logger("feed"),
			Metrics: rt.Metrics,
			Status:  rt.CurrentConnStatus,
		})
		g.Go(func() error { return server.Run(ctx, addr) })
	}
	if url := strings.TrimSpace(*broker); url != "" {
		mqttCfg := cfg.MQTT
		mqttCfg.Broker = url
		pub, err := mqttbridge.Dial(ctx, mqttCfg, rt.LogManager.Logger("mqtt"))
		if err != nil {
			return err
		}
		defer pub.Close()
		bridge := mqttbridge.New(rt.Bus, pub, mqttbridge.Options{
			Logger:      rt.LogManager.Logger("mqtt"),
			Metrics:     rt.Metrics,
			TopicPrefix: mqttCfg.TopicPrefix,
		})
		g.Go(func() error { return bridge.Run(ctx) })
	}
	if !*noConnect {
		g.Go(func() error {
			if err := rt.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				// Feed clients see the failure as a status event.
				rt.LogManager.Logger("cli").Warn("initial connect failed", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func runHistory(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	fs := newFlagSet("history", out)
	days := fs.Int("days", meallog.DefaultHistoryDays, "how many days back")
	user := fs.String("user", "", "user id (default: configured user)")
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	log, err := mealLog(rt)
	if err != nil {
		return err
	}

	meals, err := log.History(ctx, *user, *days)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, mealViews(meals))
	}
	return printMeals(out, meals)
}

func runInsights(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	fs := newFlagSet("insights", out)
	user := fs.String("user", "", "user id (default: configured user)")
	jsonOut := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	log, err := mealLog(rt)
	if err != nil {
		return err
	}

	insights, err := log.Insights(ctx, *user)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(out, insights)
	}
	printInsights(out, insights)
	return nil
}

func runSimilar(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	fs := newFlagSet("similar", out)
	food := fs.String("food", "", "food name to compare against")
	mealContext := fs.String("context", "", "meal context")
	verdict := fs.String("verdict", "", "verdict: green, yellow or red")
	limit := fs.Int("limit", meallog.DefaultSimilarLimit, "maximum results")
	user := fs.String("user", "", "user id (default: configured user)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*food) == "" {
		return fmt.Errorf("%w: -food is required", errUsage)
	}
	log, err := mealLog(rt)
	if err != nil {
		return err
	}

	v, _ := domain.ParseVerdict(*verdict)
	hits, err := log.FindSimilar(ctx, *user, meallog.Entry{FoodName: *food, Context: *mealContext, Verdict: v}, *limit)
	if err != nil {
		return err
	}
	return printSimilar(out, hits)
}

func runClear(_ context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	if err := newFlagSet("clear", out).Parse(args); err != nil {
		return err
	}
	if err := rt.ClearDatabase(); err != nil {
		return err
	}
	fmt.Fprintln(out, "database cleared")
	return nil
}

func runScan(ctx context.Context, inv invocation, out io.Writer) error {
	fs := newFlagSet("scan", out)
	duration := fs.Duration("duration", 10*time.Second, "scan duration")
	all := fs.Bool("all", false, "list devices without the glasses service too")
	if err := fs.Parse(inv.Args); err != nil {
		return err
	}

	devices, err := transport.NewBluetoothScanner(*duration).Scan(ctx, inv.Global.Adapter)
	if err != nil {
		return err
	}
	return printScan(out, devices, *all)
}

func mealLog(rt *app.Runtime) (*meallog.Log, error) {
	if rt.MealLog == nil {
		return nil, errors.New("meal log is disabled in config")
	}
	return rt.MealLog, nil
}
