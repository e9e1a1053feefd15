// Package switchledger reads settled transfers from the core switch database.
//
// Every transfer produces two records, one for the debit leg and one for the
// credit leg, each attributed to the institution that owns that leg's account.
// Transfers that were only requested and never confirmed are left out.
package switchledger

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/conciliation/config"
	sqlconn "github.com/jerry-enebeli/conciliation/internal/sql-conn"
	"github.com/jerry-enebeli/conciliation/model"
)

const (
	stateCompleted = "COMPLETADO"
	stateRequested = "SOLICITADO"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Reader returns the switch legs confirmed inside [from, to).
type Reader interface {
	ReadTransactions(ctx context.Context, from, to time.Time) ([]model.TransactionRecord, error)
}

type SQLReader struct {
	db     *sql.DB
	driver string
	query  string
}

// Open connects to the core switch database described by cfg.
func Open(ctx context.Context, cfg config.SwitchLedgerConfig) (*SQLReader, error) {
	db, err := sqlconn.Open(ctx, cfg.Driver, cfg.Dns, sqlconn.ReadOnlyPool)
	if err != nil {
		return nil, fmt.Errorf("opening switch ledger: %w", err)
	}
	return NewReader(db, cfg.Driver, cfg.Schema)
}

// NewReader wraps an open handle. driver decides the placeholder syntax.
func NewReader(db *sql.DB, driver, schema string) (*SQLReader, error) {
	if schema != "" && !identifier.MatchString(schema) {
		return nil, fmt.Errorf("invalid switch ledger schema %q", schema)
	}
	switch driver {
	case "postgres", "mysql", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported switch ledger driver %q", driver)
	}
	return &SQLReader{db: db, driver: driver, query: legsQuery(driver, schema)}, nil
}

func (r *SQLReader) Close() error {
	return r.db.Close()
}

func placeholders(driver string) [4]string {
	if driver == "postgres" {
		return [4]string{"$1", "$2", "$3", "$4"}
	}
	return [4]string{"?", "?", "?", "?"}
}

func legsQuery(driver, schema string) string {
	table := "transaccion"
	if schema != "" {
		table = schema + "." + table
	}
	p := placeholders(driver)

	leg := func(alias, side, sign, counterpart string, from, to string) string {
		return fmt.Sprintf(`
		SELECT
			%[1]s.uuid AS business_key,
			%[1]s.codigo_corte AS cut_off_number,
			%[1]s.fecha_corte AS cut_off_date,
			%[1]s.fecha_confirmacion AS transaction_date,
			%[1]s.tipo_cuenta_%[2]s AS account_type,
			%[1]s.numero_cuenta_%[2]s AS account_number,
			%[1]s.monto AS amount,
			%[1]s.id_movimiento_%[2]s AS movement_code,
			'%[3]s' AS amount_sign,
			%[1]s.codigo_institucion_%[2]s AS institution_code,
			%[1]s.codigo_servicio AS service_code,
			%[1]s.estado AS state,
			%[1]s.id_movimiento_%[2]s_reverso AS reversal_movement_code,
			%[1]s.codigo_institucion_%[4]s AS counterpart_code
		FROM %[5]s %[1]s
		WHERE %[1]s.fecha_confirmacion >= %[6]s AND %[1]s.fecha_confirmacion < %[7]s
			AND %[1]s.estado <> '%[8]s'`, alias, side, sign, counterpart, table, from, to, stateRequested)
	}

	return leg("a", "debito", string(model.Debit), "credito", p[0], p[1]) +
		"\n\t\tUNION" +
		leg("b", "credito", string(model.Credit), "debito", p[2], p[3]) +
		"\n\t\tORDER BY transaction_date, amount_sign"
}

// ReadTransactions implements Reader.
func (r *SQLReader) ReadTransactions(ctx context.Context, from, to time.Time) ([]model.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.query, from, to, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying switch ledger: %w", err)
	}
	defer rows.Close()

	var records []model.TransactionRecord
	for rows.Next() {
		var (
			rec                                   model.TransactionRecord
			cutOffNumber, accountType, accountNum sql.NullString
			serviceCode, state, reversal, sign    sql.NullString
			cutOffDate                            sql.NullTime
			institution, counterpart              sql.NullInt64
			amount                                decimal.NullDecimal
		)
		err := rows.Scan(
			&rec.BusinessKey,
			&cutOffNumber,
			&cutOffDate,
			&rec.TransactionDate,
			&accountType,
			&accountNum,
			&amount,
			&rec.MovementCode,
			&sign,
			&institution,
			&serviceCode,
			&state,
			&reversal,
			&counterpart,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning switch ledger row: %w", err)
		}

		rec.CutOffNumber = cutOffNumber.String
		if cutOffDate.Valid {
			rec.CutOffDate = cutOffDate.Time.Format(model.DateLayout)
		}
		rec.AccountType = accountType.String
		rec.AccountNumber = accountNum.String
		rec.Amount = amount.Decimal.Round(2)
		rec.AmountSign = model.AmountSign(strings.TrimSpace(sign.String))
		rec.InstitutionCode = int(institution.Int64)
		rec.ServiceCode = serviceCode.String
		rec.ExecutionStatus = model.ExecutionFailed
		if state.String == stateCompleted {
			rec.ExecutionStatus = model.ExecutionCompleted
		}
		rec.ReversalMovementCode = reversal.String
		rec.CounterpartCode = int(counterpart.Int64)
		rec.Side = model.SideSwitch
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading switch ledger rows: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"driver": r.driver,
		"from":   from.Format(time.RFC3339),
		"to":     to.Format(time.RFC3339),
		"count":  len(records),
	}).Info("switch ledger legs read")
	return records, nil
}
