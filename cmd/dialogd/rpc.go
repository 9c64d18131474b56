package main

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"sync"

	"github.com/meteorhacks/dialog"
	"github.com/meteorhacks/dialog/dialogerr"
	"github.com/meteorhacks/dialog/schema"
	"github.com/meteorhacks/dialog/session"
	"github.com/meteorhacks/dialog/store"
	"github.com/meteorhacks/dialog/threadregistry"
	"github.com/meteorhacks/goddp/server"
	"golang.org/x/sync/errgroup"
)

// rpcServer bridges session.Session's RPC surface onto a DDP method
// dispatch table, the way kdbd/ddp-server/server.go bridges kdb.Database
// onto a single "put" method. Every dialog RPC call is stateless at the
// transport level and names its session explicitly by handler_id (goddp's
// MethodContext carries no connection identity of its own), so sessions
// live in a server-side map keyed by the handler_id register_handler
// hands back.
type rpcServer struct {
	addr  string
	store *dialog.Store

	limiter errgroup.Group // bounds concurrently-running method bodies

	mu       sync.Mutex
	sessions map[threadregistry.HandlerID]*session.Session

	batchSize int
}

func newRPCServer(addr string, st *dialog.Store, maxConcurrency, batchSize int) *rpcServer {
	s := &rpcServer{
		addr:      addr,
		store:     st,
		sessions:  make(map[threadregistry.HandlerID]*session.Session),
		batchSize: batchSize,
	}
	s.limiter.SetLimit(maxConcurrency)
	return s
}

func (s *rpcServer) Listen() {
	log.Print("dialogd: listening on ", s.addr)
	ddp := server.New()
	ddp.Method("register_handler", s.wrap(s.handleRegisterHandler))
	ddp.Method("deregister_handler", s.wrap(s.handleDeregisterHandler))
	ddp.Method("create_table", s.wrap(s.handleCreateTable))
	ddp.Method("set_current_table", s.wrap(s.handleSetCurrentTable))
	ddp.Method("add_index", s.wrap(s.handleAddIndex))
	ddp.Method("remove_index", s.wrap(s.handleRemoveIndex))
	ddp.Method("add_filter", s.wrap(s.handleAddFilter))
	ddp.Method("remove_filter", s.wrap(s.handleRemoveFilter))
	ddp.Method("add_trigger", s.wrap(s.handleAddTrigger))
	ddp.Method("remove_trigger", s.wrap(s.handleRemoveTrigger))
	ddp.Method("append", s.wrap(s.handleAppend))
	ddp.Method("append_batch", s.wrap(s.handleAppendBatch))
	ddp.Method("read", s.wrap(s.handleRead))
	ddp.Method("adhoc_filter", s.wrap(s.handleAdhocFilter))
	ddp.Method("predef_filter", s.wrap(s.handlePredefFilter))
	ddp.Method("combined_filter", s.wrap(s.handleCombinedFilter))
	ddp.Method("alerts_by_time", s.wrap(s.handleAlertsByTime))
	ddp.Method("get_more", s.wrap(s.handleGetMore))
	ddp.Method("num_records", s.wrap(s.handleNumRecords))
	ddp.Listen(s.addr)
}

// wrap enqueues body onto the shared, MAX_CONCURRENCY-limited errgroup
// before it runs, so a burst of connections can't run unbounded method
// bodies concurrently; the call itself blocks only while waiting for a
// free slot, mirroring TThreadedServer::setConcurrentClientLimit in the
// original source.
func (s *rpcServer) wrap(body func(ctx server.MethodContext)) func(server.MethodContext) {
	return func(ctx server.MethodContext) {
		s.limiter.Go(func() error {
			body(ctx)
			return nil
		})
	}
}

func decodeParam(ctx server.MethodContext, v interface{}) error {
	raw, ok := ctx.Params[0].(string)
	if !ok {
		return dialogerr.Parse("missing payload")
	}
	return json.Unmarshal([]byte(raw), v)
}

func sendJSON(ctx server.MethodContext, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		ctx.SendError(err.Error())
		return
	}
	ctx.SendResult(string(data))
}

func sendErr(ctx server.MethodContext, err error) {
	ctx.SendError(err.Error())
}

func (s *rpcServer) sessionFor(id threadregistry.HandlerID) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, dialogerr.RegistrationFailed("unknown handler_id")
	}
	return sess, nil
}

// --- register_handler / deregister_handler ---

type registerHandlerResult struct {
	HandlerID int64 `json:"handlerId"`
}

// handleRegisterHandler is the accept path for this RPC model: goddp's
// MethodContext carries no peer/socket identity to log at actual accept
// time, so a handler_id minted here is the nearest equivalent to
// dialog_clone_factory::getHandler's per-connection handler in the
// original source, and is logged the same way.
func (s *rpcServer) handleRegisterHandler(ctx server.MethodContext) {
	defer ctx.SendUpdated()

	sess := session.New(s.store, threadregistry.Global(), s.batchSize)
	id, err := sess.RegisterHandler()
	if err != nil {
		sendErr(ctx, err)
		return
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	log.Print("dialogd: registered handler ", id)

	sendJSON(ctx, registerHandlerResult{HandlerID: int64(id)})
}

type deregisterHandlerRequest struct {
	HandlerID int64 `json:"handlerId"`
}

func (s *rpcServer) handleDeregisterHandler(ctx server.MethodContext) {
	defer ctx.SendUpdated()

	var req deregisterHandlerRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}

	id := threadregistry.HandlerID(req.HandlerID)
	sess, err := s.sessionFor(id)
	if err != nil {
		sendErr(ctx, err)
		return
	}

	err = sess.DeregisterHandler()

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if err != nil {
		sendErr(ctx, err)
		return
	}
	ctx.SendResult(nil)
}

// --- create_table / set_current_table ---

type columnSpec struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Width int    `json:"width"`
}

type createTableRequest struct {
	HandlerID int64        `json:"handlerId"`
	Name      string       `json:"name"`
	Columns   []columnSpec `json:"columns"`
	Mode      string       `json:"mode"`
}

type createTableResult struct {
	TableID int64 `json:"tableId"`
}

var columnTypeByName = map[string]schema.ColumnType{
	"BOOL":   schema.Bool,
	"CHAR":   schema.Char,
	"SHORT":  schema.Short,
	"INT":    schema.Int,
	"LONG":   schema.Long,
	"FLOAT":  schema.Float,
	"DOUBLE": schema.Double,
	"STRING": schema.String,
}

var storageModeByName = map[string]store.Mode{
	"IN_MEMORY":       store.InMemory,
	"DURABLE_RELAXED": store.DurableRelaxed,
	"DURABLE_STRICT":  store.DurableStrict,
}

func buildSchema(cols []columnSpec) (*schema.Schema, error) {
	b := schema.NewBuilder()
	for _, c := range cols {
		t, ok := columnTypeByName[c.Type]
		if !ok {
			return nil, dialogerr.Parse("unknown column type: " + c.Type)
		}
		if err := b.AddColumn(t, c.Name, c.Width); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func (s *rpcServer) handleCreateTable(ctx server.MethodContext) {
	defer ctx.SendUpdated()

	var req createTableRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}

	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}

	sch, err := buildSchema(req.Columns)
	if err != nil {
		sendErr(ctx, err)
		return
	}

	mode, ok := storageModeByName[req.Mode]
	if !ok {
		mode = store.InMemory
	}

	id, err := sess.CreateTable(req.Name, sch, mode)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendJSON(ctx, createTableResult{TableID: id})
}

type setCurrentTableRequest struct {
	HandlerID int64  `json:"handlerId"`
	Name      string `json:"name"`
}

type setCurrentTableResult struct {
	Columns []columnSpec `json:"columns"`
}

func (s *rpcServer) handleSetCurrentTable(ctx server.MethodContext) {
	defer ctx.SendUpdated()

	var req setCurrentTableRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}

	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}

	sch, err := sess.SetCurrentTable(req.Name)
	if err != nil {
		sendErr(ctx, err)
		return
	}

	cols := make([]columnSpec, 0, len(sch.Columns()))
	for _, c := range sch.Columns() {
		cols = append(cols, columnSpec{Name: c.Name, Type: c.Type.String(), Width: c.Width})
	}
	sendJSON(ctx, setCurrentTableResult{Columns: cols})
}

// --- index/filter/trigger lifecycle ---

type fieldBucketRequest struct {
	HandlerID  int64   `json:"handlerId"`
	Field      string  `json:"field"`
	BucketSize float64 `json:"bucketSize"`
}

func (s *rpcServer) handleAddIndex(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req fieldBucketRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	if err := sess.AddIndex(req.Field, req.BucketSize); err != nil {
		sendErr(ctx, err)
		return
	}
	ctx.SendResult(nil)
}

type fieldRequest struct {
	HandlerID int64  `json:"handlerId"`
	Field     string `json:"field"`
}

func (s *rpcServer) handleRemoveIndex(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req fieldRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	if err := sess.RemoveIndex(req.Field); err != nil {
		sendErr(ctx, err)
		return
	}
	ctx.SendResult(nil)
}

type namedExprRequest struct {
	HandlerID int64  `json:"handlerId"`
	Name      string `json:"name"`
	Expr      string `json:"expr"`
}

func (s *rpcServer) handleAddFilter(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req namedExprRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	if err := sess.AddFilter(req.Name, req.Expr); err != nil {
		sendErr(ctx, err)
		return
	}
	ctx.SendResult(nil)
}

type namedRequest struct {
	HandlerID int64  `json:"handlerId"`
	Name      string `json:"name"`
}

func (s *rpcServer) handleRemoveFilter(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req namedRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	if err := sess.RemoveFilter(req.Name); err != nil {
		sendErr(ctx, err)
		return
	}
	ctx.SendResult(nil)
}

type addTriggerRequest struct {
	HandlerID  int64  `json:"handlerId"`
	Name       string `json:"name"`
	FilterName string `json:"filterName"`
	Expr       string `json:"expr"`
}

func (s *rpcServer) handleAddTrigger(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req addTriggerRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	if err := sess.AddTrigger(req.Name, req.FilterName, req.Expr); err != nil {
		sendErr(ctx, err)
		return
	}
	ctx.SendResult(nil)
}

func (s *rpcServer) handleRemoveTrigger(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req namedRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	if err := sess.RemoveTrigger(req.Name); err != nil {
		sendErr(ctx, err)
		return
	}
	ctx.SendResult(nil)
}

// --- append / read / num_records ---

type appendRequest struct {
	HandlerID int64  `json:"handlerId"`
	Data      string `json:"data"` // base64
}

type appendResult struct {
	Offset int64 `json:"offset"`
}

func (s *rpcServer) handleAppend(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req appendRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	offset, err := sess.Append(data)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendJSON(ctx, appendResult{Offset: offset})
}

type appendBatchRequest struct {
	HandlerID int64    `json:"handlerId"`
	Records   []string `json:"records"` // base64 each
}

type appendBatchResult struct {
	FirstOffset int64 `json:"firstOffset"`
}

func (s *rpcServer) handleAppendBatch(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req appendBatchRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}

	records := make([][]byte, 0, len(req.Records))
	for _, enc := range req.Records {
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			sendErr(ctx, err)
			return
		}
		records = append(records, data)
	}

	first, err := sess.AppendBatch(records)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendJSON(ctx, appendBatchResult{FirstOffset: first})
}

type readRequest struct {
	HandlerID int64 `json:"handlerId"`
	Offset    int64 `json:"offset"`
	NRecords  int   `json:"nRecords"`
}

type readResult struct {
	Data string `json:"data"` // base64
}

func (s *rpcServer) handleRead(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req readRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	data, err := sess.Read(req.Offset, req.NRecords)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendJSON(ctx, readResult{Data: base64.StdEncoding.EncodeToString(data)})
}

func (s *rpcServer) handleNumRecords(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req struct {
		HandlerID int64 `json:"handlerId"`
	}
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	n, err := sess.NumRecords()
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendJSON(ctx, struct {
		NumRecords int64 `json:"numRecords"`
	}{NumRecords: n})
}

// --- query / iterator RPCs ---

type batchResult struct {
	Descriptor descriptorDTO `json:"descriptor"`
	Data       string        `json:"data"` // base64
	NumEntries uint32        `json:"numEntries"`
	HasMore    bool          `json:"hasMore"`
}

type descriptorDTO struct {
	DataType   int   `json:"dataType"`
	HandlerID  int64 `json:"handlerId"`
	IteratorID int64 `json:"iteratorId"`
	Kind       int   `json:"kind"`
}

func toDescriptorDTO(d session.Descriptor) descriptorDTO {
	return descriptorDTO{
		DataType:   int(d.DataType),
		HandlerID:  int64(d.HandlerID),
		IteratorID: int64(d.IteratorID),
		Kind:       int(d.Kind),
	}
}

func toDescriptor(d descriptorDTO) session.Descriptor {
	return session.Descriptor{
		DataType:   session.DataType(d.DataType),
		HandlerID:  threadregistry.HandlerID(d.HandlerID),
		IteratorID: session.IteratorID(d.IteratorID),
		Kind:       session.Kind(d.Kind),
	}
}

func sendBatch(ctx server.MethodContext, b session.Batch) {
	sendJSON(ctx, batchResult{
		Descriptor: toDescriptorDTO(b.Descriptor),
		Data:       base64.StdEncoding.EncodeToString(b.Data),
		NumEntries: b.NumEntries,
		HasMore:    b.HasMore,
	})
}

type adhocFilterRequest struct {
	HandlerID int64  `json:"handlerId"`
	Expr      string `json:"expr"`
}

func (s *rpcServer) handleAdhocFilter(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req adhocFilterRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	batch, err := sess.AdhocFilter(req.Expr)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendBatch(ctx, batch)
}

type predefFilterRequest struct {
	HandlerID int64  `json:"handlerId"`
	Name      string `json:"name"`
	T0Ms      int64  `json:"t0Ms"`
	T1Ms      int64  `json:"t1Ms"`
}

func (s *rpcServer) handlePredefFilter(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req predefFilterRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	batch, err := sess.PredefFilter(req.Name, req.T0Ms, req.T1Ms)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendBatch(ctx, batch)
}

type combinedFilterRequest struct {
	HandlerID int64  `json:"handlerId"`
	Name      string `json:"name"`
	Expr      string `json:"expr"`
	T0Ms      int64  `json:"t0Ms"`
	T1Ms      int64  `json:"t1Ms"`
}

func (s *rpcServer) handleCombinedFilter(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req combinedFilterRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	batch, err := sess.CombinedFilter(req.Name, req.Expr, req.T0Ms, req.T1Ms)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendBatch(ctx, batch)
}

type alertsByTimeRequest struct {
	HandlerID int64 `json:"handlerId"`
	T0Ms      int64 `json:"t0Ms"`
	T1Ms      int64 `json:"t1Ms"`
}

func (s *rpcServer) handleAlertsByTime(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req alertsByTimeRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	batch, err := sess.AlertsByTime(req.T0Ms, req.T1Ms)
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendBatch(ctx, batch)
}

type getMoreRequest struct {
	HandlerID  int64         `json:"handlerId"`
	Descriptor descriptorDTO `json:"descriptor"`
}

func (s *rpcServer) handleGetMore(ctx server.MethodContext) {
	defer ctx.SendUpdated()
	var req getMoreRequest
	if err := decodeParam(ctx, &req); err != nil {
		sendErr(ctx, err)
		return
	}
	sess, err := s.sessionFor(threadregistry.HandlerID(req.HandlerID))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	batch, err := sess.GetMore(toDescriptor(req.Descriptor))
	if err != nil {
		sendErr(ctx, err)
		return
	}
	sendBatch(ctx, batch)
}
