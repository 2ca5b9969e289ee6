package zwave

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 3

	// commandTimeout is the timeout for sending commands to devices.
	commandTimeout = 5 * time.Second

	// readAllTimeout is the timeout for refreshing all device states.
	readAllTimeout = 30 * time.Second

	// interFrameDelay is the delay between frames of a bulk refresh to
	// avoid flooding the mesh.
	interFrameDelay = 50 * time.Millisecond
)

// StateSnapshot is the persistable portion of a device's state.
type StateSnapshot struct {
	RGBW     RGBWState         `json:"rgbw"`
	Restore  RestoreState      `json:"restore"`
	Pending  map[string]*uint8 `json:"pending,omitempty"`
	Level    uint8             `json:"level"`
	SwitchOn bool              `json:"switch_on"`
	Effect   byte              `json:"effect"`
	Model    string            `json:"model"`
	Firmware float64           `json:"firmware"`
}

// StateStore persists device state across bridge restarts.
// This is optional - if nil, the bridge operates without persistence.
type StateStore interface {
	// SaveDeviceState stores the snapshot for a device.
	SaveDeviceState(ctx context.Context, deviceID string, snap StateSnapshot) error

	// LoadDeviceState retrieves the snapshot for a device.
	// The bool result reports whether a snapshot existed.
	LoadDeviceState(ctx context.Context, deviceID string) (StateSnapshot, bool, error)
}

// TelemetrySink receives meter and sensor readings for long-term storage.
// This is optional - if nil, readings are published to MQTT only.
type TelemetrySink interface {
	// RecordMeter stores an electrical meter reading.
	RecordMeter(deviceID, measurement string, value float64)

	// RecordSensor stores an analog input reading.
	RecordSensor(deviceID, channel string, value float64)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// managedDevice bundles the per-device reconciliation machinery.
//
// mu serialises all planner and reconciler access for the device: inbound
// frames arrive on gateway callback workers and commands on MQTT handler
// goroutines, and both mutate the same state.
type managedDevice struct {
	cfg     DeviceConfig
	state   *DeviceState
	planner *Planner
	router  *ChannelRouter
	sched   *Scheduler
	recon   *Reconciler

	mu sync.Mutex

	// Flash oscillator bookkeeping.
	flashActive bool
	flashOn     bool
	flashRate   time.Duration
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Gateway is the gateway daemon connection.
	Gateway Connector

	// Logger is optional structured logger.
	Logger Logger

	// Store is optional device state persistence.
	// If nil, the bridge operates without persistence.
	Store StateStore

	// Telemetry is optional long-term storage for meter/sensor readings.
	// If nil, readings are published to MQTT only.
	Telemetry TelemetrySink
}

// Bridge orchestrates bidirectional translation between the Z-Wave mesh
// and MQTT. It handles:
//   - Receiving commands from Core via MQTT and translating to node frames
//   - Receiving node frames and publishing derived state updates to MQTT
//   - Flash oscillation, effect supervision, and parameter sync
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       *Config
	mqtt      MQTTClient
	gateway   Connector
	health    *HealthReporter
	store     StateStore
	telemetry TelemetrySink

	// Device lookup (built from config, immutable after Start)
	devices map[string]*managedDevice
	byNode  map[byte]*managedDevice

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway client is required")
	}

	// Create bridge-level context for command cancellation on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTTClient,
		gateway:   opts.Gateway,
		store:     opts.Store,     // May be nil (optional)
		telemetry: opts.Telemetry, // May be nil (optional)
		devices:   make(map[string]*managedDevice),
		byNode:    make(map[byte]*managedDevice),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	for _, devCfg := range opts.Config.Devices {
		b.addDevice(devCfg)
	}

	// Create health reporter
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:       opts.Config.Bridge.ID,
		Version:        "1.0.0", // TODO: inject from build
		Interval:       opts.Config.GetHealthInterval(),
		Publisher:      opts.MQTTClient,
		Gateway:        opts.Gateway,
		GatewayAddress: opts.Config.Gateway.Connection,
	})
	b.health.SetDeviceCount(len(b.devices))
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// addDevice builds the reconciliation machinery for one configured device.
func (b *Bridge) addDevice(cfg DeviceConfig) {
	state := NewDeviceState()
	state.Identity.Model = cfg.Model
	router := NewChannelRouter(cfg.AnalogEndpoints)
	sched := NewScheduler()
	planner := NewPlanner(state, cfg.Calibration(), b.logger)

	dev := &managedDevice{
		cfg:     cfg,
		state:   state,
		planner: planner,
		router:  router,
		sched:   sched,
	}

	flashRate := time.Duration(flashRateDefaultMs) * time.Millisecond
	if cfg.FlashRateMs != 0 {
		flashRate = time.Duration(clampInt(cfg.FlashRateMs, flashRateMinMs, flashRateMaxMs)) * time.Millisecond
	}
	dev.flashRate = flashRate

	sink := &deviceSink{bridge: b, dev: dev}
	sender := &deviceSender{bridge: b, dev: dev}
	flash := &deviceFlash{bridge: b, dev: dev}
	dev.recon = NewReconciler(state, planner, router, sink, sender, flash, b.logger)

	b.devices[cfg.DeviceID] = dev
	b.byNode[cfg.NodeID] = dev
}

// Start begins bridge operation.
// This loads persisted state, subscribes to MQTT topics, sets up the
// frame handler, syncs device configuration, and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	// Restore persisted device state
	b.loadPersistedState(ctx)

	// Publish starting status
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Set up inbound frame handler
	b.gateway.SetOnFrame(b.handleNodeFrame)

	// Subscribe to command topics
	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	// Subscribe to request topics
	requestTopic := RequestSubscribeTopic()
	if err := b.mqtt.Subscribe(requestTopic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to requests: %w", err)
	}
	b.logInfo("subscribed to requests", "topic", requestTopic)

	// Announce managed devices
	b.publishDiscovery()

	// Refresh and sync every device in the background
	go b.refreshAllDevices(b.ctx)

	// Start health reporting
	b.health.Start(ctx)

	// Publish initial healthy status
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", len(b.devices))

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// Stop per-device timers
		for _, dev := range b.devices {
			dev.sched.Stop()
		}

		// Persist final state
		b.persistAllState()

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for pending operations
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// loadPersistedState restores each device's snapshot from the store.
// A corrupt or missing snapshot leaves the factory-fresh defaults in place.
func (b *Bridge) loadPersistedState(ctx context.Context) {
	if b.store == nil {
		return
	}

	for id, dev := range b.devices {
		snap, ok, err := b.store.LoadDeviceState(ctx, id)
		if err != nil {
			b.logError("failed to load persisted state, starting fresh",
				fmt.Errorf("device=%s: %w", id, err))
			continue
		}
		if !ok {
			continue
		}

		dev.mu.Lock()
		dev.state.RGBW = snap.RGBW
		dev.state.Restore = snap.Restore
		dev.state.Level = snap.Level
		dev.state.SwitchOn = snap.SwitchOn
		dev.state.Effect = snap.Effect
		if dev.state.Identity.Model == "" {
			dev.state.Identity.Model = snap.Model
		}
		dev.state.Identity.Firmware = snap.Firmware
		dev.state.Pending.restore(snap.Pending)
		dev.mu.Unlock()

		b.logInfo("restored persisted state", "device", id)
	}
}

// persistAllState saves every device's snapshot. Used during shutdown.
func (b *Bridge) persistAllState() {
	if b.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	for id, dev := range b.devices {
		dev.mu.Lock()
		snap := snapshotLocked(dev.state)
		dev.mu.Unlock()

		if err := b.store.SaveDeviceState(ctx, id, snap); err != nil {
			b.logError("failed to persist state", fmt.Errorf("device=%s: %w", id, err))
		}
	}
}

// snapshotLocked captures a device's persistable state.
// Caller must hold the device mutex.
func snapshotLocked(s *DeviceState) StateSnapshot {
	return StateSnapshot{
		RGBW:     s.RGBW,
		Restore:  s.Restore,
		Pending:  s.Pending.snapshot(),
		Level:    s.Level,
		SwitchOn: s.SwitchOn,
		Effect:   s.Effect,
		Model:    s.Identity.Model,
		Firmware: s.Identity.Firmware,
	}
}

// persistDevice saves one device's snapshot (best-effort, asynchronous
// callers should not block the dispatch path on storage).
func (b *Bridge) persistDevice(deviceID string, dev *managedDevice) {
	if b.store == nil {
		return
	}

	dev.mu.Lock()
	snap := snapshotLocked(dev.state)
	dev.mu.Unlock()

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.store.SaveDeviceState(ctx, deviceID, snap); err != nil {
		b.logDebug("state persistence skipped", "device", deviceID, "reason", err.Error())
	}
}

// refreshAllDevices issues a full read cycle and configuration sync for
// every managed device. Used at startup to converge persisted state with
// reality.
func (b *Bridge) refreshAllDevices(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, readAllTimeout)
	defer cancel()

	for id, dev := range b.devices {
		dev.mu.Lock()
		frames := dev.planner.Refresh(dev.router.AnalogEndpoints())
		frames = append(frames, dev.planner.SyncConfiguration(parameterValues(dev.cfg.Parameters))...)
		for _, assoc := range dev.cfg.Associations {
			assocFrames, err := dev.planner.SetAssociation(assoc.Group, assoc.Nodes)
			if err != nil {
				b.logError("association sync skipped", fmt.Errorf("device=%s: %w", id, err))
				continue
			}
			frames = append(frames, assocFrames...)
		}
		dev.mu.Unlock()

		for _, frame := range frames {
			if err := b.gateway.Send(refreshCtx, dev.cfg.NodeID, frame); err != nil {
				b.logError("refresh send failed", fmt.Errorf("device=%s: %w", id, err))
				break
			}
			select {
			case <-refreshCtx.Done():
				b.logInfo("refresh interrupted")
				return
			case <-time.After(interFrameDelay):
			}
		}
	}

	b.logInfo("startup refresh complete", "devices", len(b.devices))
}

// parameterValues converts configured parameters into planner sync entries.
func parameterValues(params []ParameterConfig) []ParameterValue {
	values := make([]ParameterValue, 0, len(params))
	for _, p := range params {
		values = append(values, ParameterValue{Number: p.Number, Size: p.Size, Value: p.Value})
	}
	return values
}

// publishDiscovery announces the configured devices to Core.
func (b *Bridge) publishDiscovery() {
	msg := DiscoveryMessage{
		Timestamp: time.Now().UTC(),
		Bridge:    b.cfg.Bridge.ID,
	}

	for _, dev := range b.devices {
		caps := []string{"on_off", "dim", "color", "white", "effects", "flash"}
		for range dev.cfg.AnalogEndpoints {
			caps = append(caps, "analog_input")
		}
		msg.Devices = append(msg.Devices, DiscoveredDevice{
			Protocol:      "zwave",
			Address:       nodeAddress(dev.cfg.NodeID),
			Type:          "light_rgbw",
			Capabilities:  caps,
			SuggestedName: dev.cfg.Name,
		})
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal discovery", err)
		return
	}
	if err := b.mqtt.Publish(DiscoveryTopic(), payload, 1, false); err != nil {
		b.logError("failed to publish discovery", err)
	}
}

// nodeAddress formats a node id as a topic address segment.
func nodeAddress(nodeID byte) string {
	return strconv.Itoa(int(nodeID))
}

// handleNodeFrame processes an incoming frame from the gateway.
func (b *Bridge) handleNodeFrame(f NodeFrame) {
	dev, ok := b.byNode[f.NodeID]
	if !ok {
		// Unknown node, ignore (might be traffic we don't care about)
		return
	}

	report, err := DecodeFrame(f.Data)
	if err != nil {
		b.logError("failed to decode frame",
			fmt.Errorf("node=%d: %w", f.NodeID, err))
		return
	}

	dev.mu.Lock()
	dev.recon.Handle(report)
	dev.mu.Unlock()

	b.persistDevice(dev.cfg.DeviceID, dev)
}

// handleMQTTMessage routes incoming MQTT messages to appropriate handlers.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	messageType := parts[1] // command, request, etc.

	switch messageType {
	case "command":
		b.handleCommand(payload)
	case "request":
		b.handleRequest(payload)
	default:
		b.logError("unknown message type", fmt.Errorf("type: %s", messageType))
	}
}

// handleCommand processes a command message from Core.
func (b *Bridge) handleCommand(payload []byte) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	dev, ok := b.devices[cmd.DeviceID]
	if !ok {
		b.publishAckError(cmd, "", ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", cmd.DeviceID), 0)
		return
	}

	if err := b.executeCommand(cmd, dev); err != nil {
		b.logError("command execution failed", err)
		// Error ack already sent by executeCommand
		return
	}

	b.persistDevice(cmd.DeviceID, dev)
}

// executeCommand plans and sends a command's frames to the device.
func (b *Bridge) executeCommand(cmd CommandMessage, dev *managedDevice) error {
	address := nodeAddress(dev.cfg.NodeID)

	channel, err := commandChannel(cmd, dev)
	if err != nil {
		b.publishAckError(cmd, address, ErrCodeInvalidParameters, err.Error(), 0)
		return err
	}

	dev.mu.Lock()
	frames, planErr := b.planCommand(cmd, dev, channel)
	dev.mu.Unlock()

	if planErr != nil {
		b.publishAckError(cmd, address, ErrCodeInvalidParameters, planErr.Error(), 0)
		return planErr
	}
	if frames == nil {
		// Command fully handled without frames (e.g. flash stop with no
		// oscillator running).
		b.publishAck(cmd, address, AckAccepted)
		return nil
	}

	// Publish accepted ack before sending
	b.publishAck(cmd, address, AckAccepted)

	if err := b.sendFrames(dev, frames); err != nil {
		b.publishAckError(cmd, address, ErrCodeDeviceUnreachable,
			fmt.Sprintf("send failed: %v", err), 0)
		return err
	}

	return nil
}

// commandChannel resolves the optional "channel" parameter to a logical
// channel. A missing parameter targets the whole device.
func commandChannel(cmd CommandMessage, dev *managedDevice) (*LogicalChannel, error) {
	key, ok := cmd.Parameters["channel"].(string)
	if !ok || key == "" {
		return nil, nil
	}
	ch, err := dev.router.ChannelForRoutingKey(key)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// planCommand translates a command message into frames via the planner.
// Caller must hold the device mutex.
func (b *Bridge) planCommand(cmd CommandMessage, dev *managedDevice, channel *LogicalChannel) ([]Frame, error) {
	switch cmd.Command {
	case "on":
		if channel != nil {
			return dev.planner.ChannelOn(channel.Kind), nil
		}
		return dev.planner.On(), nil

	case "off":
		if channel != nil {
			return dev.planner.ChannelOff(channel.Kind), nil
		}
		return dev.planner.Off(), nil

	case "dim":
		level, err := numberParam(cmd.Parameters, "level")
		if err != nil {
			return nil, err
		}
		duration := intParamOr(cmd.Parameters, "duration", 0)
		if channel != nil {
			return dev.planner.ChannelSetLevel(channel.Kind, int(level), duration), nil
		}
		return dev.planner.SetLevel(int(level), duration), nil

	case "set_color":
		return planSetColor(cmd, dev)

	case "set_white":
		level, err := numberParam(cmd.Parameters, "level")
		if err != nil {
			return nil, err
		}
		return dev.planner.SetWhite(int(level)), nil

	case "set_effect":
		return planSetEffect(cmd, dev)

	case "next_effect":
		return dev.planner.SetEffect(NextEffect(dev.state.Effect))

	case "previous_effect":
		return dev.planner.SetEffect(PreviousEffect(dev.state.Effect))

	case "flash":
		return b.planFlash(cmd, dev)

	case "refresh":
		return dev.planner.Refresh(dev.router.AnalogEndpoints()), nil

	default:
		return nil, fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

// planSetColor builds a colour command from message parameters.
func planSetColor(cmd CommandMessage, dev *managedDevice) ([]Frame, error) {
	var cc ColorCommand

	if v, ok := cmd.Parameters["hue"]; ok {
		hue, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("'hue' must be a number")
		}
		if hue < 0 || hue > 360 {
			return nil, fmt.Errorf("'hue' must be 0-360, got %.2f", hue)
		}
		cc.Hue = &hue
	}
	if v, ok := cmd.Parameters["saturation"]; ok {
		sat, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("'saturation' must be a number")
		}
		if sat < 0 || sat > 100 {
			return nil, fmt.Errorf("'saturation' must be 0-100, got %.2f", sat)
		}
		cc.Saturation = &sat
	}
	if v, ok := cmd.Parameters["level"]; ok {
		level, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("'level' must be a number")
		}
		cc.Level = &level
	}
	if v, ok := cmd.Parameters["duration"]; ok {
		dur, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("'duration' must be a number")
		}
		d := int(dur)
		cc.DurationSeconds = &d
	}

	if cc.Hue == nil && cc.Saturation == nil && cc.Level == nil {
		return nil, fmt.Errorf("set_color requires at least one of hue, saturation, level")
	}

	return dev.planner.SetColor(cc), nil
}

// planSetEffect resolves the effect parameter (name or number) and plans
// its activation.
func planSetEffect(cmd CommandMessage, dev *managedDevice) ([]Frame, error) {
	v, ok := cmd.Parameters["effect"]
	if !ok {
		return nil, fmt.Errorf("missing 'effect' parameter")
	}

	switch effect := v.(type) {
	case string:
		number, err := EffectNumber(effect)
		if err != nil {
			return nil, err
		}
		return dev.planner.SetEffect(number)
	case float64:
		return dev.planner.SetEffect(byte(effect))
	default:
		return nil, fmt.Errorf("'effect' must be a name or number")
	}
}

// planFlash starts or stops the flash oscillator.
// Caller must hold the device mutex.
//
// A positive rate (milliseconds per full cycle, clamped 1000-30000) starts
// or retunes the oscillator; zero or a negative rate, or enabled=false,
// stops it and reasserts the pre-flash appearance.
func (b *Bridge) planFlash(cmd CommandMessage, dev *managedDevice) ([]Frame, error) {
	rate := dev.flashRate
	stop := false

	if v, ok := cmd.Parameters["enabled"].(bool); ok && !v {
		stop = true
	}
	if v, ok := cmd.Parameters["rate_ms"]; ok {
		ms, isNum := v.(float64)
		if !isNum {
			return nil, fmt.Errorf("'rate_ms' must be a number")
		}
		if ms <= 0 {
			stop = true
		} else {
			rate = time.Duration(clampInt(int(ms), flashRateMinMs, flashRateMaxMs)) * time.Millisecond
		}
	}

	if stop {
		return b.stopFlashLocked(dev), nil
	}

	dev.flashActive = true
	dev.flashOn = true
	dev.flashRate = rate
	frames := dev.planner.FlashPhase(true)
	b.scheduleFlashPhase(dev)
	return frames, nil
}

// stopFlashLocked cancels the oscillator and plans the restore frames.
// Caller must hold the device mutex.
func (b *Bridge) stopFlashLocked(dev *managedDevice) []Frame {
	if !dev.flashActive {
		return nil
	}
	dev.flashActive = false
	dev.sched.Cancel(timerTagFlash)

	if dev.state.SwitchOn {
		return dev.planner.RestoreFrames()
	}
	return dev.planner.FlashPhase(false)
}

// scheduleFlashPhase arms the next half-period of the oscillator.
// Caller must hold the device mutex.
func (b *Bridge) scheduleFlashPhase(dev *managedDevice) {
	dev.sched.ScheduleOnce(timerTagFlash, dev.flashRate/2, func() {
		dev.mu.Lock()
		if !dev.flashActive {
			dev.mu.Unlock()
			return
		}
		dev.flashOn = !dev.flashOn
		frames := dev.planner.FlashPhase(dev.flashOn)
		b.scheduleFlashPhase(dev)
		dev.mu.Unlock()

		if err := b.sendFrames(dev, frames); err != nil {
			b.logError("flash phase send failed",
				fmt.Errorf("device=%s: %w", dev.cfg.DeviceID, err))
		}
	})
}

// sendFrames sends a planned frame sequence to the device in order.
func (b *Bridge) sendFrames(dev *managedDevice, frames []Frame) error {
	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	for _, frame := range frames {
		if err := b.gateway.Send(ctx, dev.cfg.NodeID, frame); err != nil {
			return err
		}
	}
	return nil
}

// publishAck publishes a command acknowledgment.
//
//nolint:unparam // status parameter will be used for AckQueued when queue support is added
func (b *Bridge) publishAck(cmd CommandMessage, address string, status AckStatus) {
	ack := NewAckMessage(cmd, status, address)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := AckTopic(address)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, address, code, message string, retries int) {
	ack := NewAckError(cmd, address, code, message, retries)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	topic := AckTopic(address)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message))
}

// handleRequest processes a request message from Core.
func (b *Bridge) handleRequest(payload []byte) {
	var req RequestMessage
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logError("failed to parse request", err)
		return
	}

	b.logInfo("received request",
		"request_id", req.RequestID,
		"action", req.Action)

	var resp ResponseMessage

	switch req.Action {
	case "read_state":
		resp = b.handleReadState(req)
	case "read_all":
		resp = b.handleReadAll(req)
	case "set_association":
		resp = b.handleSetAssociation(req)
	case "sync_parameters":
		resp = b.handleSyncParameters(req)
	default:
		resp = errorResponse(req, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown action: %s", req.Action))
	}

	respPayload, err := json.Marshal(resp)
	if err != nil {
		b.logError("failed to marshal response", err)
		return
	}

	respTopic := ResponseTopic(req.RequestID)
	if err := b.mqtt.Publish(respTopic, respPayload, 1, false); err != nil {
		b.logError("failed to publish response", err)
	}
}

// errorResponse builds a failed ResponseMessage.
func errorResponse(req RequestMessage, code, message string) ResponseMessage {
	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   false,
		Error: &ResponseError{
			Code:    code,
			Message: message,
		},
	}
}

// handleReadState handles a read_state request: a full refresh of one
// device. State updates follow via the report pipeline.
func (b *Bridge) handleReadState(req RequestMessage) ResponseMessage {
	if req.DeviceID == "" {
		return errorResponse(req, ErrCodeInvalidParameters, "device_id is required")
	}

	dev, ok := b.devices[req.DeviceID]
	if !ok {
		return errorResponse(req, ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", req.DeviceID))
	}

	dev.mu.Lock()
	frames := dev.planner.Refresh(dev.router.AnalogEndpoints())
	dev.mu.Unlock()

	if err := b.sendFrames(dev, frames); err != nil {
		return errorResponse(req, ErrCodeDeviceUnreachable,
			fmt.Sprintf("refresh failed: %v", err))
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"message": "refresh sent, state updates will follow",
		},
	}
}

// handleReadAll handles a read_all request: a full refresh of every device.
func (b *Bridge) handleReadAll(req RequestMessage) ResponseMessage {
	ctx, cancel := context.WithTimeout(b.ctx, readAllTimeout)
	defer cancel()

	frameCount := 0
	for id, dev := range b.devices {
		dev.mu.Lock()
		frames := dev.planner.Refresh(dev.router.AnalogEndpoints())
		dev.mu.Unlock()

		for _, frame := range frames {
			if err := b.gateway.Send(ctx, dev.cfg.NodeID, frame); err != nil {
				b.logError("read request failed",
					fmt.Errorf("device=%s: %w", id, err))
				break
			}
			frameCount++

			// Small delay between frames to avoid flooding the mesh
			select {
			case <-ctx.Done():
				return errorResponse(req, ErrCodeTimeout, "read_all timed out")
			case <-time.After(interFrameDelay):
			}
		}
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"frames_sent": frameCount,
			"message":     "refresh sent, state updates will follow",
		},
	}
}

// handleSetAssociation handles a set_association request.
// Parameters: group (number), nodes (array of numbers).
func (b *Bridge) handleSetAssociation(req RequestMessage) ResponseMessage {
	dev, ok := b.devices[req.DeviceID]
	if !ok {
		return errorResponse(req, ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", req.DeviceID))
	}

	group, err := numberParam(req.Parameters, "group")
	if err != nil {
		return errorResponse(req, ErrCodeInvalidParameters, err.Error())
	}

	nodesAny, ok := req.Parameters["nodes"].([]any)
	if !ok {
		return errorResponse(req, ErrCodeInvalidParameters, "'nodes' must be an array")
	}
	nodes := make([]byte, 0, len(nodesAny))
	for _, n := range nodesAny {
		num, isNum := n.(float64)
		if !isNum {
			return errorResponse(req, ErrCodeInvalidParameters, "'nodes' entries must be numbers")
		}
		nodes = append(nodes, byte(num))
	}

	dev.mu.Lock()
	frames, planErr := dev.planner.SetAssociation(byte(group), nodes)
	dev.mu.Unlock()

	if planErr != nil {
		return errorResponse(req, ErrCodeInvalidParameters, planErr.Error())
	}

	if err := b.sendFrames(dev, frames); err != nil {
		return errorResponse(req, ErrCodeDeviceUnreachable,
			fmt.Sprintf("send failed: %v", err))
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data: map[string]any{
			"group": group,
			"nodes": nodes,
		},
	}
}

// handleSyncParameters handles a sync_parameters request, pushing the
// configured desired parameter values to the device.
func (b *Bridge) handleSyncParameters(req RequestMessage) ResponseMessage {
	dev, ok := b.devices[req.DeviceID]
	if !ok {
		return errorResponse(req, ErrCodeNotConfigured,
			fmt.Sprintf("device %s not configured", req.DeviceID))
	}

	dev.mu.Lock()
	frames := dev.planner.SyncConfiguration(parameterValues(dev.cfg.Parameters))
	dev.mu.Unlock()

	if len(frames) == 0 {
		return ResponseMessage{
			RequestID: req.RequestID,
			Timestamp: time.Now().UTC(),
			Success:   true,
			Data:      map[string]any{"parameters_synced": 0},
		}
	}

	if err := b.sendFrames(dev, frames); err != nil {
		return errorResponse(req, ErrCodeDeviceUnreachable,
			fmt.Sprintf("send failed: %v", err))
	}

	return ResponseMessage{
		RequestID: req.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   true,
		Data:      map[string]any{"parameters_synced": len(dev.cfg.Parameters)},
	}
}

// numberParam extracts a required numeric parameter.
func numberParam(params map[string]any, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing '%s' parameter", key)
	}
	num, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("'%s' must be a number", key)
	}
	return num, nil
}

// intParamOr extracts an optional numeric parameter with a default.
func intParamOr(params map[string]any, key string, def int) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return def
}

// deviceSink publishes a device's derived events as MQTT state messages
// and forwards telemetry readings.
type deviceSink struct {
	bridge *Bridge
	dev    *managedDevice
}

// Emit implements EventSink.
func (s *deviceSink) Emit(ev Event) {
	b := s.bridge
	address := nodeAddress(s.dev.cfg.NodeID)
	if ev.Channel != "" {
		address = address + "/" + ev.Channel
	}

	msg := NewStateMessage(s.dev.cfg.DeviceID, address, map[string]any{ev.Name: ev.Value})

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := StateTopic(address)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}

	s.recordTelemetry(ev)
}

// recordTelemetry forwards meter and analog readings to long-term storage.
func (s *deviceSink) recordTelemetry(ev Event) {
	if s.bridge.telemetry == nil {
		return
	}

	value, ok := ev.Value.(float64)
	if !ok {
		return
	}

	switch {
	case ev.Channel != "" && ev.Name == "value":
		s.bridge.telemetry.RecordSensor(s.dev.cfg.DeviceID, ev.Channel, value)
	case ev.Name == "power" || ev.Name == "energy" || ev.Name == "apparentEnergy" || ev.Name == "voltage":
		s.bridge.telemetry.RecordMeter(s.dev.cfg.DeviceID, ev.Name, value)
	}
}

// deviceFlash exposes the flash oscillator to the reconciler so effects
// can take it over. Both methods are called with the device mutex held.
type deviceFlash struct {
	bridge *Bridge
	dev    *managedDevice
}

// SuspendFlash implements FlashController. The oscillator is cancelled
// without any restore send; the caller owns the visual from here.
func (f *deviceFlash) SuspendFlash() bool {
	if !f.dev.flashActive {
		return false
	}
	f.dev.flashActive = false
	f.dev.sched.Cancel(timerTagFlash)
	return true
}

// ResumeFlash implements FlashController, rearming the oscillator from
// its on-phase at the previously commanded rate.
func (f *deviceFlash) ResumeFlash() {
	f.dev.flashActive = true
	f.dev.flashOn = true
	f.bridge.scheduleFlashPhase(f.dev)
}

// deviceSender sends reconciler-triggered corrective frames.
type deviceSender struct {
	bridge *Bridge
	dev    *managedDevice
}

// SendFrames implements FrameSender. Sending happens on a fresh goroutine:
// the reconciler calls this while holding the device mutex and the socket
// write must not extend that critical section.
func (s *deviceSender) SendFrames(frames []Frame) {
	go func() {
		if err := s.bridge.sendFrames(s.dev, frames); err != nil {
			s.bridge.logError("corrective send failed",
				fmt.Errorf("device=%s: %w", s.dev.cfg.DeviceID, err))
		}
	}()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// BridgeMetrics contains metrics data for operational monitoring.
type BridgeMetrics struct {
	Connected      bool
	Status         string
	FramesTx       uint64
	FramesRx       uint64
	DevicesManaged int
}

// GetMetrics returns current bridge metrics.
func (b *Bridge) GetMetrics() BridgeMetrics {
	connected := false
	var stats GatewayStats
	status := "disconnected"

	if b.gateway != nil {
		connected = b.gateway.IsConnected()
		stats = b.gateway.Stats()
		if connected {
			status = "healthy"
		}
	}

	return BridgeMetrics{
		Connected:      connected,
		Status:         status,
		FramesTx:       stats.FramesTx,
		FramesRx:       stats.FramesRx,
		DevicesManaged: len(b.devices),
	}
}
