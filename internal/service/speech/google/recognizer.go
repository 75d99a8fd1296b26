// Package google implements speech.Recognizer with Google Cloud
// Speech-to-Text streaming recognition and per-utterance Gemini translation.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	speechapi "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"wav-translate/internal/observability"
	"wav-translate/internal/observability/logging"
	"wav-translate/internal/observability/metrics"
	"wav-translate/internal/service/audio"
	"wav-translate/internal/service/speech"
)

const (
	providerName = "google"

	// maxAlternativeLanguages is the service limit on alternative language codes.
	maxAlternativeLanguages = 3

	defaultEndpoint = "speech.googleapis.com:443"

	// DefaultMaxStreamDuration stays under the service's limit of about
	// five minutes of audio per streaming call.
	DefaultMaxStreamDuration = 290 * time.Second
)

// ErrAlreadyStarted is returned when recognition is started twice.
var ErrAlreadyStarted = errors.New("recognition already started")

// Config holds recognizer settings.
type Config struct {
	AudioEncoding    string // used for non-WAV input
	SampleRateHz     int    // used for non-WAV input, 0 lets the service decide
	InterimResults   bool
	ChunkBytes       int
	TranslationModel string
	// MaxStreamDuration is the audio sent per stream before a new one is
	// opened. 0 uses DefaultMaxStreamDuration, a negative value keeps a
	// single stream.
	MaxStreamDuration time.Duration
}

// DefaultConfig returns the default recognizer settings.
func DefaultConfig() Config {
	return Config{
		AudioEncoding:     "LINEAR16",
		SampleRateHz:      0,
		InterimResults:    true,
		ChunkBytes:        16000,
		TranslationModel:  DefaultTranslationModel,
		MaxStreamDuration: DefaultMaxStreamDuration,
	}
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithTranslator replaces the Gemini translator.
func WithTranslator(t Translator) Option {
	return func(r *Recognizer) { r.translator = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recognizer) { r.metrics = m }
}

// WithSessionID tags log lines with the session id.
func WithSessionID(sessionId string) Option {
	return func(r *Recognizer) { r.logger = logging.WithProvider(sessionId, providerName) }
}

// WithClientOptions appends options for the Speech client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(r *Recognizer) { r.clientOpts = append(r.clientOpts, opts...) }
}

// Recognizer streams one audio file through Google Speech-to-Text.
type Recognizer struct {
	cfg        Config
	session    speech.SessionConfig
	client     *speechapi.Client
	translator Translator
	metrics    *metrics.Metrics
	clientOpts []option.ClientOption
	logger     zerolog.Logger

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	stopping atomic.Bool
	wg       sync.WaitGroup
}

var _ speech.Recognizer = (*Recognizer)(nil)

// New creates a Speech client for the region in creds. The same API key
// authenticates the Gemini translator unless WithTranslator is given.
func New(ctx context.Context, cfg Config, creds speech.Credentials, session speech.SessionConfig, opts ...Option) (*Recognizer, error) {
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = DefaultConfig().ChunkBytes
	}
	if cfg.MaxStreamDuration == 0 {
		cfg.MaxStreamDuration = DefaultMaxStreamDuration
	}

	r := &Recognizer{
		cfg:     cfg,
		session: session,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithProvider("", providerName),
	}
	for _, opt := range opts {
		opt(r)
	}

	clientOpts := []option.ClientOption{
		option.WithAPIKey(creds.Key),
		option.WithEndpoint(Endpoint(creds.Region)),
		option.WithGRPCDialOption(grpc.WithChainStreamInterceptor(observability.StreamClientInterceptor(r.metrics))),
		option.WithGRPCDialOption(grpc.WithChainUnaryInterceptor(observability.UnaryClientInterceptor(r.metrics))),
	}
	clientOpts = append(clientOpts, r.clientOpts...)

	client, err := speechapi.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	r.client = client

	if r.translator == nil {
		t, err := NewGeminiTranslator(ctx, creds.Key, cfg.TranslationModel, r.metrics)
		if err != nil {
			client.Close()
			return nil, err
		}
		r.translator = t
	}

	return r, nil
}

// Endpoint maps a region to a Speech API endpoint. A region that already
// looks like a host name is used as is.
func Endpoint(region string) string {
	region = strings.TrimSpace(region)
	switch {
	case region == "" || strings.EqualFold(region, "global"):
		return defaultEndpoint
	case strings.Contains(region, "."):
		if !strings.Contains(region, ":") {
			return region + ":443"
		}
		return region
	default:
		return strings.ToLower(region) + "-" + defaultEndpoint
	}
}

// StartContinuousRecognition opens the audio file and the first stream, then
// streams audio and delivers results to cb on background goroutines. The
// session runs until the audio is exhausted, the service fails, or
// StopContinuousRecognition is called; cancelling ctx does not end it.
func (r *Recognizer) StartContinuousRecognition(ctx context.Context, cb speech.Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}

	src, err := audio.Open(r.session.AudioPath)
	if err != nil {
		return err
	}

	recCfg, dropped, err := recognitionConfig(r.cfg, r.session, src)
	if err != nil {
		src.Close()
		return err
	}
	if len(dropped) > 0 {
		r.logger.Warn().
			Strs("dropped", dropped).
			Int("max", maxAlternativeLanguages).
			Msg("Too many candidate languages, extra candidates ignored")
	}

	plan := newStreamPlan(r.cfg.MaxStreamDuration, recCfg, src)
	if plan.maxBytes == 0 && r.cfg.MaxStreamDuration > 0 {
		r.logger.Warn().
			Str("encoding", recCfg.Encoding.String()).
			Msg("Audio rate unknown, streaming in a single call")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st, err := r.openStream(runCtx, recCfg)
	if err != nil {
		cancel()
		src.Close()
		return err
	}

	ev := r.logger.Info().
		Str("languageCode", recCfg.LanguageCode).
		Strs("alternativeLanguageCodes", recCfg.AlternativeLanguageCodes).
		Str("encoding", recCfg.Encoding.String()).
		Int32("sampleRateHz", recCfg.SampleRateHertz).
		Str("target", r.session.TargetLanguage)
	if d := plan.duration(src.DataSize); d > 0 {
		ev = ev.Dur("audioDuration", d)
	}
	ev.Msg("Recognition stream opened")

	r.started = true
	r.cancel = cancel
	r.wg.Add(1)
	go r.recognize(runCtx, st, recCfg, plan, src, cb)
	return nil
}

// stream is one StreamingRecognize call with its own cancel.
type stream struct {
	client speechpb.Speech_StreamingRecognizeClient
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// openStream starts a StreamingRecognize call and sends the config.
func (r *Recognizer) openStream(ctx context.Context, recCfg *speechpb.RecognitionConfig) (*stream, error) {
	streamCtx, cancel := context.WithCancelCause(ctx)
	client, err := r.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel(nil)
		r.metrics.RecordSTTError(providerName, status.Code(err).String())
		return nil, fmt.Errorf("failed to open recognition stream: %w", err)
	}

	if err := client.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         recCfg,
				InterimResults: r.cfg.InterimResults,
			},
		},
	}); err != nil {
		cancel(nil)
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}
	return &stream{client: client, ctx: streamCtx, cancel: cancel}, nil
}

// recognize drives one stream after another until the audio is exhausted.
// A new stream is opened each time the per-stream audio limit is reached.
// Exactly one terminal event is delivered unless the caller stopped the
// session.
func (r *Recognizer) recognize(ctx context.Context, st *stream, recCfg *speechpb.RecognitionConfig, plan streamPlan, src *audio.Source, cb speech.Callback) {
	defer r.wg.Done()
	defer src.Close()

	m := &resultMapper{
		session:    r.session,
		translator: r.translator,
		logger:     r.logger,
	}

	var total int64
	var carry []byte
	for n := 1; ; n++ {
		pumped := make(chan pumpResult, 1)
		go func(st *stream, carry []byte) {
			pumped <- r.pump(st, src, carry, plan.maxBytes)
		}(st, carry)

		end, c := r.listen(st.ctx, st.client, cb, m)
		st.cancel(nil)
		p := <-pumped
		total += p.sent

		switch end {
		case streamAbandoned:
			return
		case streamFailed:
			r.metrics.RecordSTTError(providerName, c.ErrorCode)
			cb.OnCanceled(c)
			return
		}

		if !p.rotate {
			cb.OnSessionStopped()
			return
		}

		carry = p.carry
		base := plan.offset(total)
		r.logger.Info().
			Int("stream", n+1).
			Dur("audioOffset", base).
			Msg("Stream limit reached, continuing on a new stream")
		m.startStream(base)

		next, err := r.openStream(ctx, recCfg)
		if err != nil {
			if r.stopping.Load() {
				return
			}
			c := cancellationFromError(err, nil)
			r.metrics.RecordSTTError(providerName, c.ErrorCode)
			cb.OnCanceled(c)
			return
		}
		st = next
	}
}

// pumpResult reports what one stream's pump sent.
type pumpResult struct {
	sent   int64
	rotate bool   // stopped at the stream limit with audio left
	carry  []byte // audio read past the limit, first on the next stream
}

// pump streams audio in chunks and half-closes the stream at end of file or
// after maxBytes (0 = unlimited).
func (r *Recognizer) pump(st *stream, src io.Reader, carry []byte, maxBytes int64) pumpResult {
	var res pumpResult

	send := func(b []byte) bool {
		if err := st.client.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
				AudioContent: append([]byte(nil), b...),
			},
		}); err != nil {
			// The real error surfaces from Recv.
			r.logger.Debug().Err(err).Msg("Audio send stopped")
			return false
		}
		res.sent += int64(len(b))
		r.metrics.RecordAudioSent(len(b))
		return true
	}
	closeSend := func() {
		if err := st.client.CloseSend(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to half-close stream")
		}
	}

	if len(carry) > 0 && !send(carry) {
		return res
	}

	buf := make([]byte, r.cfg.ChunkBytes)
	for {
		if st.ctx.Err() != nil {
			return res
		}

		want := len(buf)
		if maxBytes > 0 {
			left := maxBytes - res.sent
			if left <= 0 {
				// Look ahead so a recording that ends exactly at the limit
				// does not open an empty stream.
				n, err := io.ReadFull(src, buf)
				if n == 0 && isEOF(err) {
					closeSend()
					return res
				}
				if err != nil && !isEOF(err) {
					st.cancel(fmt.Errorf("read audio: %w", err))
					return res
				}
				res.carry = append([]byte(nil), buf[:n]...)
				res.rotate = true
				closeSend()
				return res
			}
			if left < int64(want) {
				want = int(left)
			}
		}

		n, err := io.ReadFull(src, buf[:want])
		if n > 0 && !send(buf[:n]) {
			return res
		}
		if isEOF(err) {
			closeSend()
			return res
		}
		if err != nil {
			st.cancel(fmt.Errorf("read audio: %w", err))
			return res
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// streamEnd is how a single stream finished.
type streamEnd int

const (
	streamClosed    streamEnd = iota // the service closed the stream
	streamFailed                     // the stream failed, see the cancellation
	streamAbandoned                  // the caller stopped the session
)

// listen delivers non-terminal results until the stream ends and reports how
// it ended.
func (r *Recognizer) listen(ctx context.Context, client speechpb.Speech_StreamingRecognizeClient, cb speech.Callback, m *resultMapper) (streamEnd, speech.Cancellation) {
	for {
		resp, err := client.Recv()
		if r.stopping.Load() {
			return streamAbandoned, speech.Cancellation{}
		}
		if errors.Is(err, io.EOF) {
			return streamClosed, speech.Cancellation{}
		}
		if err != nil {
			return streamFailed, cancellationFromError(err, context.Cause(ctx))
		}
		if resp.Error != nil && codes.Code(resp.Error.Code) != codes.OK {
			return streamFailed, speech.Cancellation{
				Reason:       speech.CancellationError,
				ErrorCode:    codes.Code(resp.Error.Code).String(),
				ErrorDetails: resp.Error.Message,
			}
		}

		for _, res := range m.mapResponse(ctx, resp) {
			if r.stopping.Load() {
				return streamAbandoned, speech.Cancellation{}
			}
			if res.Reason == speech.ReasonRecognizing {
				cb.OnRecognizing(res)
			} else {
				cb.OnRecognized(res)
			}
		}
	}
}

// StopContinuousRecognition cancels the stream and waits for the session
// goroutines. No callback runs after it returns.
func (r *Recognizer) StopContinuousRecognition() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	r.stopping.Store(true)
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return nil
}

// Close releases the Speech client.
func (r *Recognizer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// resultMapper turns streaming responses into speech.Results. It runs on the
// listen goroutine only.
type resultMapper struct {
	session    speech.SessionConfig
	translator Translator
	logger     zerolog.Logger
	// base is the audio offset of the current stream; result times are
	// relative to it.
	base    time.Duration
	lastEnd time.Duration
}

// startStream moves the mapper to a new stream starting at base.
func (m *resultMapper) startStream(base time.Duration) {
	m.base = base
	if m.lastEnd < base {
		m.lastEnd = base
	}
}

func (m *resultMapper) mapResponse(ctx context.Context, resp *speechpb.StreamingRecognizeResponse) []speech.Result {
	var out []speech.Result
	for _, res := range resp.GetResults() {
		lang := res.GetLanguageCode()
		if lang == "" {
			lang = m.defaultLanguage()
		}

		var text string
		if alts := res.GetAlternatives(); len(alts) > 0 {
			text = strings.TrimSpace(alts[0].GetTranscript())
		}

		if !res.GetIsFinal() {
			if text == "" {
				continue
			}
			out = append(out, speech.Result{
				Reason:   speech.ReasonRecognizing,
				Text:     text,
				Language: lang,
				Offset:   m.lastEnd,
			})
			continue
		}

		start := m.lastEnd
		end := start
		if d := res.GetResultEndTime(); d != nil {
			end = m.base + d.AsDuration()
		}
		m.lastEnd = end
		dur := end - start
		if dur < 0 {
			dur = 0
		}

		if text == "" {
			out = append(out, speech.Result{Reason: speech.ReasonNoMatch, Language: lang, Offset: start, Duration: dur})
			continue
		}

		result := speech.Result{
			Reason:   speech.ReasonRecognizedSpeech,
			Text:     text,
			Language: lang,
			Offset:   start,
			Duration: dur,
		}
		translated, err := m.translator.Translate(ctx, text, lang, m.session.TargetLanguage)
		if err != nil {
			m.logger.Warn().Err(err).Str("text", text).Msg("Translation failed, keeping source only")
		} else {
			result.Reason = speech.ReasonTranslatedSpeech
			result.Translations = map[string]string{m.session.TargetLanguage: translated}
		}
		out = append(out, result)
	}
	return out
}

func (m *resultMapper) defaultLanguage() string {
	if m.session.SourceLanguage != "" {
		return m.session.SourceLanguage
	}
	if len(m.session.CandidateSourceLanguages) > 0 {
		return m.session.CandidateSourceLanguages[0]
	}
	return ""
}

// recognitionConfig builds the request config. It returns the candidate
// languages that did not fit into the alternative language list.
func recognitionConfig(cfg Config, session speech.SessionConfig, src *audio.Source) (*speechpb.RecognitionConfig, []string, error) {
	rc := &speechpb.RecognitionConfig{
		EnableAutomaticPunctuation: true,
	}

	if src != nil && src.IsWAV {
		enc := src.Format.Encoding()
		if enc == "" {
			return nil, nil, fmt.Errorf("unsupported WAV sample format %s with %d bits per sample",
				src.Format.Name(), src.Format.BitsPerSample)
		}
		rc.Encoding = parseAudioEncoding(enc)
		rc.SampleRateHertz = int32(src.Format.SampleRate)
		if src.Format.Channels > 1 {
			rc.AudioChannelCount = int32(src.Format.Channels)
		}
	} else {
		rc.Encoding = parseAudioEncoding(cfg.AudioEncoding)
		rc.SampleRateHertz = int32(cfg.SampleRateHz)
	}

	var dropped []string
	if session.SourceLanguage != "" {
		rc.LanguageCode = session.SourceLanguage
	} else if len(session.CandidateSourceLanguages) > 0 {
		rc.LanguageCode = session.CandidateSourceLanguages[0]
		alts := session.CandidateSourceLanguages[1:]
		if len(alts) > maxAlternativeLanguages {
			dropped = append(dropped, alts[maxAlternativeLanguages:]...)
			alts = alts[:maxAlternativeLanguages]
		}
		rc.AlternativeLanguageCodes = append([]string(nil), alts...)
	}

	return rc, dropped, nil
}

// streamPlan splits uncompressed audio into streams of at most maxBytes.
type streamPlan struct {
	bytesPerSecond int64
	maxBytes       int64 // 0 = single stream
}

func newStreamPlan(limit time.Duration, rc *speechpb.RecognitionConfig, src *audio.Source) streamPlan {
	var bps, frame int64
	if src != nil && src.IsWAV {
		bps = int64(src.Format.BytesPerSecond())
		frame = int64(src.Format.FrameSize())
	} else {
		switch rc.GetEncoding() {
		case speechpb.RecognitionConfig_LINEAR16:
			frame = 2
		case speechpb.RecognitionConfig_MULAW:
			frame = 1
		}
		bps = int64(rc.GetSampleRateHertz()) * frame
	}

	p := streamPlan{bytesPerSecond: bps}
	if limit <= 0 || bps <= 0 || frame <= 0 {
		return p
	}
	p.maxBytes = int64(limit.Seconds() * float64(bps))
	p.maxBytes -= p.maxBytes % frame
	return p
}

// offset converts a byte count into audio time.
func (p streamPlan) offset(n int64) time.Duration {
	if p.bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(p.bytesPerSecond) * float64(time.Second))
}

// duration estimates the recording length, 0 when unknown.
func (p streamPlan) duration(dataSize int64) time.Duration {
	if dataSize <= 0 {
		return 0
	}
	return p.offset(dataSize)
}

// parseAudioEncoding converts an encoding name to the API enum, defaulting
// to LINEAR16.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToUpper(encoding) {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
