package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/halcyon-lab/swing-trading/internal/logger"
	"github.com/halcyon-lab/swing-trading/internal/types"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
)

// DuckDBStore implements PositionRepository, TradeLog, and BarRepository
// on a DuckDB database. Pass ":memory:" for an ephemeral database.
type DuckDBStore struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDuckDBStore opens the database and creates the schema.
func NewDuckDBStore(path string, log *logger.Logger) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "opening duckdb at %s", path)
	}

	s := &DuckDBStore{
		db:     db,
		logger: log.Named("store"),
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := s.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

func (s *DuckDBStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			account TEXT NOT NULL,
			signal INTEGER NOT NULL,
			entry_price DOUBLE,
			hold_qty DOUBLE,
			first_sell_price DOUBLE,
			buy_ratio DOUBLE NOT NULL,
			sell_ratio DOUBLE NOT NULL,
			allocated DOUBLE NOT NULL,
			buy_count INTEGER NOT NULL,
			eod_signals TEXT,
			last_modified TIMESTAMP,
			active BOOLEAN NOT NULL DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			position_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price DOUBLE NOT NULL,
			quantity DOUBLE NOT NULL,
			fee DOUBLE NOT NULL,
			reason TEXT NOT NULL,
			executed_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT NOT NULL,
			date TIMESTAMP NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL,
			foreign_net_buy DOUBLE,
			PRIMARY KEY (symbol, date)
		);
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "creating schema", err)
	}

	return nil
}

// Close releases the database handle.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

func nullFloat(o optional.Option[float64]) sql.NullFloat64 {
	if v, err := o.Take(); err == nil {
		return sql.NullFloat64{Float64: v, Valid: true}
	}

	return sql.NullFloat64{}
}

func optFloat(n sql.NullFloat64) optional.Option[float64] {
	if n.Valid {
		return optional.Some(n.Float64)
	}

	return optional.None[float64]()
}

func encodeEODSignals(m map[types.EODSignal]time.Time) (string, error) {
	if len(m) == 0 {
		return "", nil
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeQueryFailed, "encoding eod signals", err)
	}

	return string(raw), nil
}

func decodeEODSignals(raw sql.NullString) (map[types.EODSignal]time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var m map[types.EODSignal]time.Time
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "decoding eod signals", err)
	}

	return m, nil
}

// Create implements PositionRepository.
func (s *DuckDBStore) Create(ctx context.Context, p *types.Position) error {
	if err := p.Validate(); err != nil {
		return err
	}

	signals, err := encodeEODSignals(p.EODSignals)
	if err != nil {
		return err
	}

	query, args, err := s.sq.
		Insert("positions").
		Columns("id", "symbol", "account", "signal", "entry_price", "hold_qty",
			"first_sell_price", "buy_ratio", "sell_ratio", "allocated",
			"buy_count", "eod_signals", "last_modified", "active").
		Values(p.ID, p.Symbol, p.Account, int(p.Signal), nullFloat(p.EntryPrice),
			nullFloat(p.HoldQty), nullFloat(p.FirstSellPrice), p.BuyRatio,
			p.SellRatio, p.Allocated, p.BuyCount, signals, p.LastModified, true).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "building insert", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "creating position %s", p.ID)
	}

	return nil
}

// Save implements PositionRepository.
func (s *DuckDBStore) Save(ctx context.Context, p *types.Position) error {
	signals, err := encodeEODSignals(p.EODSignals)
	if err != nil {
		return err
	}

	query, args, err := s.sq.
		Update("positions").
		Set("signal", int(p.Signal)).
		Set("entry_price", nullFloat(p.EntryPrice)).
		Set("hold_qty", nullFloat(p.HoldQty)).
		Set("first_sell_price", nullFloat(p.FirstSellPrice)).
		Set("buy_ratio", p.BuyRatio).
		Set("sell_ratio", p.SellRatio).
		Set("allocated", p.Allocated).
		Set("buy_count", p.BuyCount).
		Set("eod_signals", signals).
		Set("last_modified", p.LastModified).
		Where(squirrel.Eq{"id": p.ID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "building update", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "saving position %s", p.ID)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return errors.Newf(errors.ErrCodePositionNotFound, "position %s not found", p.ID)
	}

	return nil
}

// Deactivate implements PositionRepository.
func (s *DuckDBStore) Deactivate(ctx context.Context, id string) error {
	query, args, err := s.sq.
		Update("positions").
		Set("active", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "building deactivate", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "deactivating position %s", id)
	}

	return nil
}

// FindActive implements PositionRepository.
func (s *DuckDBStore) FindActive(ctx context.Context) ([]types.Position, error) {
	return s.queryPositions(ctx, squirrel.Eq{"active": true})
}

// Find implements PositionRepository.
func (s *DuckDBStore) Find(ctx context.Context, id string) (types.Position, error) {
	positions, err := s.queryPositions(ctx, squirrel.Eq{"id": id})
	if err != nil {
		return types.Position{}, err
	}

	if len(positions) == 0 {
		return types.Position{}, errors.Newf(errors.ErrCodePositionNotFound, "position %s not found", id)
	}

	return positions[0], nil
}

func (s *DuckDBStore) queryPositions(ctx context.Context, where any) ([]types.Position, error) {
	query, args, err := s.sq.
		Select("id", "symbol", "account", "signal", "entry_price", "hold_qty",
			"first_sell_price", "buy_ratio", "sell_ratio", "allocated",
			"buy_count", "eod_signals", "last_modified").
		From("positions").
		Where(where).
		OrderBy("symbol").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "building select", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "querying positions", err)
	}
	defer rows.Close()

	var positions []types.Position

	for rows.Next() {
		var (
			p            types.Position
			signal       int
			entryPrice   sql.NullFloat64
			holdQty      sql.NullFloat64
			firstSell    sql.NullFloat64
			eodSignals   sql.NullString
			lastModified sql.NullTime
		)

		if err := rows.Scan(&p.ID, &p.Symbol, &p.Account, &signal, &entryPrice,
			&holdQty, &firstSell, &p.BuyRatio, &p.SellRatio, &p.Allocated,
			&p.BuyCount, &eodSignals, &lastModified); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "scanning position", err)
		}

		p.Signal = types.SignalState(signal)
		p.EntryPrice = optFloat(entryPrice)
		p.HoldQty = optFloat(holdQty)
		p.FirstSellPrice = optFloat(firstSell)

		if lastModified.Valid {
			p.LastModified = lastModified.Time
		}

		p.EODSignals, err = decodeEODSignals(eodSignals)
		if err != nil {
			return nil, err
		}

		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// Append implements TradeLog.
func (s *DuckDBStore) Append(ctx context.Context, record types.TradeRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	query, args, err := s.sq.
		Insert("trades").
		Columns("id", "position_id", "symbol", "side", "price", "quantity",
			"fee", "reason", "executed_at").
		Values(record.ID, record.PositionID, record.Symbol, string(record.Side),
			record.Price, record.Quantity, record.Fee, record.Reason, record.ExecutedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "building trade insert", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "appending trade %s", record.ID)
	}

	return nil
}

// List implements TradeLog.
func (s *DuckDBStore) List(ctx context.Context, symbol string) ([]types.TradeRecord, error) {
	builder := s.sq.
		Select("id", "position_id", "symbol", "side", "price", "quantity",
			"fee", "reason", "executed_at").
		From("trades").
		OrderBy("executed_at")

	if symbol != "" {
		builder = builder.Where(squirrel.Eq{"symbol": symbol})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "building trade select", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "querying trades", err)
	}
	defer rows.Close()

	var records []types.TradeRecord

	for rows.Next() {
		var (
			r    types.TradeRecord
			side string
		)

		if err := rows.Scan(&r.ID, &r.PositionID, &r.Symbol, &side, &r.Price,
			&r.Quantity, &r.Fee, &r.Reason, &r.ExecutedAt); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "scanning trade", err)
		}

		r.Side = types.TradeSide(side)
		records = append(records, r)
	}

	return records, rows.Err()
}

// UpsertBar implements BarRepository.
func (s *DuckDBStore) UpsertBar(ctx context.Context, bar types.PriceBar) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bars
			(symbol, date, open, high, low, close, volume, foreign_net_buy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, bar.Symbol, bar.Date, bar.Open, bar.High, bar.Low, bar.Close,
		bar.Volume, nullFloat(bar.ForeignNetBuy))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "upserting bar %s %s", bar.Symbol, bar.Date)
	}

	return nil
}

// LoadBars implements BarRepository.
func (s *DuckDBStore) LoadBars(ctx context.Context, symbol string, from, to time.Time) ([]types.PriceBar, error) {
	query, args, err := s.sq.
		Select("symbol", "date", "open", "high", "low", "close", "volume", "foreign_net_buy").
		From("bars").
		Where(squirrel.Eq{"symbol": symbol}).
		Where(squirrel.GtOrEq{"date": from}).
		Where(squirrel.LtOrEq{"date": to}).
		OrderBy("date").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "building bar select", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "querying bars for %s", symbol)
	}
	defer rows.Close()

	return scanBars(rows)
}

// LoadBarsCSV bulk-loads daily bars from a CSV file using DuckDB's
// read_csv_auto, then returns the bars for symbol. The CSV must carry
// date, open, high, low, close, volume columns; a symbol column is
// optional when loading a single-symbol file.
func (s *DuckDBStore) LoadBarsCSV(ctx context.Context, path, symbol string) ([]types.PriceBar, error) {
	s.logger.Debug("loading bars from csv", zap.String("path", path), zap.String("symbol", symbol))

	symbolExpr := "symbol"
	args := []any{path}

	if symbol != "" {
		symbolExpr = "CAST(? AS TEXT)"
		args = []any{symbol, path}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bars
		SELECT
			`+symbolExpr+` AS symbol,
			CAST(date AS TIMESTAMP) AS date,
			open, high, low, close, volume,
			NULL AS foreign_net_buy
		FROM read_csv_auto(?, header=true)
	`, args...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "loading csv %s", path)
	}

	if symbol == "" {
		symbol, err = s.resolveCSVSymbol(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	return s.LoadBars(ctx, symbol, time.Time{}, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
}

// resolveCSVSymbol reads the symbol off a CSV that carries its own
// symbol column. A file with several symbols needs one named explicitly.
func (s *DuckDBStore) resolveCSVSymbol(ctx context.Context, path string) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT min(symbol), count(DISTINCT symbol) FROM read_csv_auto(?, header=true)`, path)

	var (
		symbol   sql.NullString
		distinct int
	)

	if err := row.Scan(&symbol, &distinct); err != nil {
		return "", errors.Wrapf(errors.ErrCodeQueryFailed, err, "resolving symbol in %s", path)
	}

	if distinct == 0 || !symbol.Valid {
		return "", errors.Newf(errors.ErrCodeDataNotFound, "no bars in %s", path)
	}

	if distinct > 1 {
		return "", errors.Newf(errors.ErrCodeInvalidParameter,
			"%s carries %d symbols; pass one explicitly", path, distinct)
	}

	return symbol.String, nil
}

func scanBars(rows *sql.Rows) ([]types.PriceBar, error) {
	var bars []types.PriceBar

	for rows.Next() {
		var (
			b          types.PriceBar
			foreignNet sql.NullFloat64
		)

		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low,
			&b.Close, &b.Volume, &foreignNet); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "scanning bar", err)
		}

		b.ForeignNetBuy = optFloat(foreignNet)
		bars = append(bars, b)
	}

	return bars, rows.Err()
}
