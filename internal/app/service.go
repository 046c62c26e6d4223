package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vtruhin/StockFlux/internal/discontinuity"
	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/indicators"
	"github.com/vtruhin/StockFlux/internal/ohlc"
	"github.com/vtruhin/StockFlux/internal/ports"
	"github.com/vtruhin/StockFlux/internal/viewport"
	"github.com/vtruhin/StockFlux/internal/zoom"
)

const (
	defaultCandles       = 200 // Historic snapshot size and retention cap
	defaultVisibleRatio  = 0.2 // Share of the data shown by ResetToLatest
	defaultViewWidth     = 1000
	defaultQueueSize     = 256
	historicErrorPrefix  = "Error getting historic data: "
	streamErrorPrefix    = "Live stream error: "
	streamClosePrefix    = "Disconnected from live stream: "
	closeCodeNormal      = 1000
	closeCodeAbnormal    = 1006
	unknownReasonMessage = "Unknown reason."
)

// ErrNotRunning is returned when posting to a service whose Run loop has exited.
var ErrNotRunning = errors.New("chart service is not running")

// Source bundles the feeds and the discontinuity model behind a set of products.
type Source struct {
	Name      string
	Historic  ports.HistoricFeed
	NewStream func() ports.StreamingFeed // nil when the source has no live data
	Provider  discontinuity.Provider     // nil means no discontinuities
}

// Config holds the dependencies and settings of a ChartService.
type Config struct {
	Logger   ports.Logger
	Sink     ports.RenderSink
	Notifier ports.Notifier
	Sources  []Source
	Products []domain.Product // Product.Source must name one of Sources

	// Indicators are computed over the whole candle sequence and attached to every view.
	Indicators []indicators.Indicator

	Candles             int     // Historic candles requested and retained, defaults to 200
	DefaultVisibleRatio float64 // Defaults to 0.2
	ClosePolicy         ohlc.ClosePolicy
	AllowPan            bool
	AllowZoom           bool
	ViewWidth           float64 // Initial view width in pixels, defaults to 1000
	QueueSize           int
	Now                 func() time.Time
}

// ChartService orchestrates feeds, the candle sequence and the viewport.
//
// Every state change runs on the goroutine executing Run, through a single
// update queue. Feed callbacks and public methods only post closures to it.
type ChartService struct {
	logger     ports.Logger
	sink       ports.RenderSink
	notifier   ports.Notifier
	sources    map[string]Source
	products   map[string]domain.Product
	indicators []indicators.Indicator

	candles int
	ratio   float64
	policy  ohlc.ClosePolicy
	now     func() time.Time

	updates chan func(ctx context.Context)
	done    chan struct{}
	running atomic.Bool

	mu       sync.Mutex // Protects selected
	selected string

	// State owned by the Run goroutine.
	generation uint64
	loadID     uuid.UUID
	product    domain.Product
	period     domain.Period
	source     Source
	engine     *viewport.Engine
	agg        *ohlc.Aggregator
	domain     domain.TimeDomain
	width      float64
	stream     ports.StreamingFeed
	streamStop chan struct{} // Closed before stream.Close so blocked feed callbacks give up
	zoom       *zoom.Controller
	rendering  bool // Set while a zoom listener is rendering, to skip rebinding
}

// NewChartService creates a chart service. Call Run to start processing.
func NewChartService(cfg Config) (*ChartService, error) {
	// Validate dependencies
	if cfg.Logger == nil || cfg.Sink == nil || cfg.Notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for ChartService")
	}
	if len(cfg.Sources) == 0 || len(cfg.Products) == 0 {
		return nil, fmt.Errorf("at least one source and one product are required")
	}

	sources := make(map[string]Source, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if src.Name == "" || src.Historic == nil {
			return nil, fmt.Errorf("source %q needs a name and a historic feed", src.Name)
		}
		if src.Provider == nil {
			src.Provider = discontinuity.NewIdentity()
		}
		sources[src.Name] = src
	}
	products := make(map[string]domain.Product, len(cfg.Products))
	for _, p := range cfg.Products {
		if _, ok := sources[p.Source]; !ok {
			return nil, fmt.Errorf("product %q refers to unknown source %q", p.ID, p.Source)
		}
		if len(p.Periods) == 0 {
			return nil, fmt.Errorf("product %q has no periods", p.ID)
		}
		products[p.ID] = p
	}

	if cfg.Candles < 0 {
		return nil, fmt.Errorf("configuration Candles cannot be negative")
	}
	if cfg.Candles == 0 {
		cfg.Candles = defaultCandles
	}
	if cfg.DefaultVisibleRatio < 0 || cfg.DefaultVisibleRatio > 1 {
		return nil, fmt.Errorf("configuration DefaultVisibleRatio must be between 0 and 1")
	}
	if cfg.DefaultVisibleRatio == 0 {
		cfg.DefaultVisibleRatio = defaultVisibleRatio
	}
	if cfg.ViewWidth <= 0 {
		cfg.ViewWidth = defaultViewWidth
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &ChartService{
		logger:     cfg.Logger,
		sink:       cfg.Sink,
		notifier:   cfg.Notifier,
		sources:    sources,
		products:   products,
		indicators: cfg.Indicators,
		candles:    cfg.Candles,
		ratio:      cfg.DefaultVisibleRatio,
		policy:     cfg.ClosePolicy,
		now:        cfg.Now,
		updates:    make(chan func(ctx context.Context), cfg.QueueSize),
		done:       make(chan struct{}),
		width:      cfg.ViewWidth,
		engine:     viewport.NewEngine(nil),
		zoom:       zoom.New(zoom.Config{
			AllowPan:  cfg.AllowPan,
			AllowZoom: cfg.AllowZoom,
		}),
	}
	s.zoom.Subscribe(s.onZoom)
	return s, nil
}

// Run processes updates until ctx ends, then closes the live stream.
func (s *ChartService) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("chart service is already running")
	}
	defer close(s.done)
	s.logger.Info(ctx, "Starting Chart Service...")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			s.closeStream(context.WithoutCancel(ctx))
			s.logger.Info(ctx, "Chart Service stopped.")
			return nil
		case update := <-s.updates:
			update(ctx)
		}
	}
}

// post queues an update, blocking while the queue is full.
func (s *ChartService) post(ctx context.Context, update func(ctx context.Context)) error {
	select {
	case <-s.done:
		return ErrNotRunning
	default:
	}
	select {
	case s.updates <- update:
		return nil
	case <-s.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// postFromFeed queues an update from a feed goroutine. It is dropped once Run
// has exited or stop is closed; a nil stop never fires.
func (s *ChartService) postFromFeed(stop <-chan struct{}, update func(ctx context.Context)) {
	select {
	case s.updates <- update:
	case <-s.done:
	case <-stop:
	}
}

// SelectProduct validates productID and periodSeconds, then loads the product.
// A periodSeconds of 0 selects the product's default period.
func (s *ChartService) SelectProduct(ctx context.Context, productID string, periodSeconds int) error {
	product, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("%w: %q", ports.ErrUnsupportedProduct, productID)
	}
	period, ok := product.DefaultPeriod()
	if periodSeconds != 0 {
		period, ok = periodBySeconds(product, periodSeconds)
	}
	if !ok {
		return fmt.Errorf("%w: %s does not offer %d second candles", ports.ErrUnsupportedGranularity, productID, periodSeconds)
	}
	source := s.sources[product.Source]
	if err := source.Historic.ValidateGranularity(period.Seconds); err != nil {
		return fmt.Errorf("%s: %w", productID, err)
	}

	s.mu.Lock()
	s.selected = productID
	s.mu.Unlock()

	return s.post(ctx, func(ctx context.Context) {
		s.load(ctx, product, period, source)
	})
}

// ChangePeriod reloads the selected product at a new granularity.
func (s *ChartService) ChangePeriod(ctx context.Context, periodSeconds int) error {
	s.mu.Lock()
	productID := s.selected
	s.mu.Unlock()
	if productID == "" {
		return fmt.Errorf("%w: no product selected", ports.ErrInvalidRequest)
	}
	return s.SelectProduct(ctx, productID, periodSeconds)
}

func periodBySeconds(p domain.Product, seconds int) (domain.Period, bool) {
	for _, period := range p.Periods {
		if period.Seconds == seconds {
			return period, true
		}
	}
	return domain.Period{}, false
}

// load starts a new generation: earlier historic results and stream events are discarded from here on.
func (s *ChartService) load(ctx context.Context, product domain.Product, period domain.Period, source Source) {
	s.closeStream(ctx)

	agg, err := ohlc.New(ohlc.Config{GranularitySeconds: period.Seconds, MaxCandles: s.candles, ClosePolicy: s.policy})
	if err != nil {
		// Periods are validated before posting, so this is a programming error.
		s.logger.Error(ctx, err, "Failed to create aggregator", map[string]interface{}{"product": product.ID, "period": period.Seconds})
		return
	}

	s.generation++
	s.loadID = uuid.New()
	s.product = product
	s.period = period
	s.source = source
	s.agg = agg
	s.engine = viewport.NewEngine(source.Provider)
	s.zoom.SetProvider(source.Provider)
	s.zoom.SetDataExtent(domain.TimeDomain{})
	s.domain = domain.TimeDomain{}

	gen, loadID := s.generation, s.loadID
	params := ports.FetchParams{
		Product:            product.ID,
		GranularitySeconds: period.Seconds,
		Candles:            s.candles,
		End:                s.now(),
	}
	fields := map[string]interface{}{"product": product.ID, "period": period.Name, "source": source.Name, "loadID": loadID.String()}
	s.logger.Info(ctx, "Loading historic data", fields)

	go func() {
		candles, err := source.Historic.Fetch(ctx, params)
		s.postFromFeed(nil, func(ctx context.Context) {
			s.onHistoric(ctx, gen, candles, err)
		})
	}()
}

func (s *ChartService) onHistoric(ctx context.Context, gen uint64, candles []domain.Candle, err error) {
	fields := map[string]interface{}{"product": s.product.ID, "loadID": s.loadID.String()}
	if gen != s.generation {
		s.logger.Debug(ctx, "Discarding stale historic data", map[string]interface{}{"generation": gen, "current": s.generation})
		return
	}
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load historic data", fields)
		s.notify(ctx, ports.NotificationError, historicErrorPrefix+reason(err), err)
		return
	}

	s.agg.Reset(candles)
	fields["candles"] = s.agg.Len()
	s.logger.Info(ctx, "Historic data loaded", fields)

	s.resetToLatest(ctx)
	s.openStream(ctx, gen)
}

func (s *ChartService) openStream(ctx context.Context, gen uint64) {
	if s.source.NewStream == nil {
		return
	}
	stream := s.source.NewStream()
	stop := make(chan struct{})
	s.stream = stream
	s.streamStop = stop
	product := s.product.ID

	handlers := ports.StreamHandlers{
		OnTrade: func(trade domain.Trade) {
			s.postFromFeed(stop, func(ctx context.Context) { s.onTrade(ctx, gen, trade) })
		},
		OnError: func(err error) {
			s.postFromFeed(stop, func(ctx context.Context) { s.onStreamError(ctx, gen, err) })
		},
		OnClose: func(info domain.CloseInfo) {
			s.postFromFeed(stop, func(ctx context.Context) { s.onStreamClose(ctx, gen, info) })
		},
	}

	go func() {
		if err := stream.Open(ctx, product, handlers); err != nil {
			if errors.Is(err, ports.ErrStreamClosed) {
				return
			}
			s.postFromFeed(stop, func(ctx context.Context) {
				if gen != s.generation {
					return
				}
				s.stream = nil
				s.onStreamError(ctx, gen, err)
			})
		}
	}()
}

func (s *ChartService) closeStream(ctx context.Context) {
	if s.streamStop != nil {
		close(s.streamStop)
		s.streamStop = nil
	}
	if s.stream == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		s.logger.Warn(ctx, "Failed to close live stream", map[string]interface{}{"error": err.Error()})
	}
	s.stream = nil
}

func (s *ChartService) onTrade(ctx context.Context, gen uint64, trade domain.Trade) {
	if gen != s.generation {
		return
	}
	candles := s.agg.Candles()
	wasTracking := viewport.TrackingLatest(s.domain, candles)

	res, err := s.agg.Ingest(trade)
	if err != nil {
		s.logger.Warn(ctx, "Ignoring trade", map[string]interface{}{"error": err.Error(), "price": trade.Price, "size": trade.Size})
		return
	}
	if res.Created {
		s.logger.Debug(ctx, "New candle", map[string]interface{}{"date": res.Candle.Date.Format(time.RFC3339), "trimmed": res.Trimmed})
	}

	switch {
	case s.domain.IsZero():
		// first data after an empty snapshot
		s.resetToLatest(ctx)
		return
	case wasTracking:
		s.domain = s.engine.Follow(s.domain, true, s.agg.Candles())
	}
	s.render(ctx)
}

func (s *ChartService) onStreamError(ctx context.Context, gen uint64, err error) {
	if gen != s.generation {
		return
	}
	message := err.Error()
	var feedErr *ports.FeedError
	if errors.As(err, &feedErr) && feedErr.Message != "" {
		message = feedErr.Message
	}
	s.logger.Error(ctx, err, "Live stream error", map[string]interface{}{"product": s.product.ID})
	s.notify(ctx, ports.NotificationWarning, streamErrorPrefix+message, err)
}

func (s *ChartService) onStreamClose(ctx context.Context, gen uint64, info domain.CloseInfo) {
	if gen != s.generation {
		return
	}
	s.stream = nil
	s.logger.Warn(ctx, "Live stream closed", map[string]interface{}{"product": s.product.ID, "code": info.Code, "reason": info.Reason, "clean": info.Clean})
	if info.Clean || info.Code == closeCodeNormal || info.Code == closeCodeAbnormal {
		return
	}
	r := info.Reason
	if r == "" {
		r = unknownReasonMessage
	}
	message := streamClosePrefix + r
	if info.Code != 0 {
		message = streamClosePrefix + strconv.Itoa(info.Code) + " " + r
	}
	s.notify(ctx, ports.NotificationWarning, message, nil)
}

func (s *ChartService) notify(ctx context.Context, level ports.NotificationLevel, message string, err error) {
	s.notifier.Notify(ctx, ports.Notification{Level: level, Message: message, Err: err})
}

// reason extracts the user-facing part of a feed error.
func reason(err error) string {
	var feedErr *ports.FeedError
	if errors.As(err, &feedErr) {
		return feedErr.Reason()
	}
	return err.Error()
}

// ResetToLatest shows the newest DefaultVisibleRatio of the data.
func (s *ChartService) ResetToLatest(ctx context.Context) error {
	return s.post(ctx, s.resetToLatest)
}

func (s *ChartService) resetToLatest(ctx context.Context) {
	if s.agg == nil {
		return
	}
	d, ok := s.engine.ResetToLatest(s.agg.Candles(), s.ratio)
	if !ok {
		return
	}
	s.domain = d
	s.render(ctx)
}

// CenterOn recenters the view on date, keeping its width.
func (s *ChartService) CenterOn(ctx context.Context, date time.Time) error {
	return s.post(ctx, func(ctx context.Context) {
		if s.agg == nil || s.domain.IsZero() {
			return
		}
		s.domain = s.engine.CenterOnDate(s.domain, s.agg.Candles(), date)
		s.render(ctx)
	})
}

// SetView replaces the visible domain, e.g. from a navigator brush.
// The domain is clamped to the data; a zero-width result is ignored.
func (s *ChartService) SetView(ctx context.Context, d domain.TimeDomain) error {
	d = domain.NewTimeDomain(d.Start, d.End)
	return s.post(ctx, func(ctx context.Context) {
		if s.agg == nil {
			return
		}
		extent, ok := viewport.Extent(s.agg.Candles())
		if !ok {
			return
		}
		clamped := viewport.ClampDomain(d, extent)
		if clamped.Degenerate() {
			return
		}
		s.domain = clamped
		s.render(ctx)
	})
}

// BeginGesture starts a pan/zoom gesture.
func (s *ChartService) BeginGesture(ctx context.Context) error {
	return s.post(ctx, func(context.Context) { s.zoom.Begin() })
}

// Gesture applies a cumulative pan/zoom transform relative to the view at gesture start.
func (s *ChartService) Gesture(ctx context.Context, g zoom.Gesture) error {
	return s.post(ctx, func(ctx context.Context) {
		if _, ok := s.zoom.Update(g); !ok {
			s.logger.Debug(ctx, "Gesture rejected", map[string]interface{}{"scale": g.Scale, "translateX": g.TranslateX})
		}
	})
}

// EndGesture finishes a pan/zoom gesture.
func (s *ChartService) EndGesture(ctx context.Context) error {
	return s.post(ctx, func(context.Context) {
		s.zoom.End()
		if !s.domain.IsZero() {
			s.zoom.Rebind(s.domain, s.width)
		}
	})
}

// Resize changes the view width gestures are measured against.
func (s *ChartService) Resize(ctx context.Context, width float64) error {
	if width <= 0 {
		return fmt.Errorf("%w: width must be positive, got %v", ports.ErrInvalidRequest, width)
	}
	return s.post(ctx, func(context.Context) {
		s.width = width
		s.zoom.Rebind(s.domain, s.width)
	})
}

// Snapshot returns the current view.
func (s *ChartService) Snapshot(ctx context.Context) (domain.View, error) {
	reply := make(chan domain.View, 1)
	err := s.post(ctx, func(context.Context) {
		reply <- s.view()
	})
	if err != nil {
		return domain.View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return domain.View{}, ErrNotRunning
	case <-ctx.Done():
		return domain.View{}, ctx.Err()
	}
}

func (s *ChartService) view() domain.View {
	if s.agg == nil || s.domain.IsZero() {
		return domain.View{}
	}
	candles := s.agg.Candles()
	view := s.engine.View(s.domain, candles)
	if len(view.Visible) == 0 {
		return view
	}
	first, last := view.Visible[0].Date, view.Visible[len(view.Visible)-1].Date
	for _, ind := range s.indicators {
		if len(candles) < ind.RequiredDataPoints() {
			continue
		}
		series, err := ind.Compute(candles)
		if err != nil {
			continue
		}
		view.Indicators = append(view.Indicators, series.Between(first, last))
	}
	return view
}

// onZoom receives domains accepted by the zoom controller, on the Run goroutine.
func (s *ChartService) onZoom(d domain.TimeDomain) {
	s.domain = d
	s.rendering = true
	s.render(context.Background())
	s.rendering = false
}

// render publishes the current view and keeps the zoom controller in step with it.
func (s *ChartService) render(ctx context.Context) {
	view := s.view()
	if view.Domain.IsZero() {
		return
	}
	if extent, ok := viewport.Extent(s.agg.Candles()); ok {
		s.zoom.SetDataExtent(extent)
	}
	s.zoom.SetTrackingLatest(view.TrackingLatest)
	// a gesture keeps its reference until it ends
	if !s.rendering && s.zoom.State() != zoom.Dragging {
		s.zoom.Rebind(s.domain, s.width)
	}
	s.sink.Render(ctx, view)
}
