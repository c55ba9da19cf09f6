package sql

import (
	"database/sql/driver"
	"errors"
	"io"
	"reflect"
)

// Compile-time interface checks.
var (
	_ driver.Rows                           = (*bufferedRows)(nil)
	_ driver.RowsNextResultSet              = (*bufferedRows)(nil)
	_ driver.RowsColumnTypeDatabaseTypeName = (*bufferedRows)(nil)
	_ driver.RowsColumnTypeScanType         = (*bufferedRows)(nil)
	_ driver.RowsColumnTypeNullable         = (*bufferedRows)(nil)
	_ driver.RowsColumnTypeLength           = (*bufferedRows)(nil)
	_ driver.RowsColumnTypePrecisionScale   = (*bufferedRows)(nil)
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// bufferedRows is a result set read to the end while the shared connection
// was locked. The real rows are closed before the caller sees the first row,
// so other proxies can use the connection while the caller scans.
type bufferedRows struct {
	sets []resultSet
	set  int
	pos  int
}

type resultSet struct {
	columns []string
	types   []columnType
	rows    [][]driver.Value
}

type columnType struct {
	databaseTypeName string
	scanType         reflect.Type

	nullable, hasNullable bool

	length    int64
	hasLength bool

	precision, scale  int64
	hasPrecisionScale bool
}

// bufferRows drains every result set of rows and closes it.
func bufferRows(rows driver.Rows) (driver.Rows, error) {
	b := &bufferedRows{}
	for {
		set, err := readResultSet(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		b.sets = append(b.sets, set)

		next, ok := rows.(driver.RowsNextResultSet)
		if !ok || !next.HasNextResultSet() {
			break
		}
		if err := next.NextResultSet(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			_ = rows.Close()
			return nil, err
		}
	}

	if err := rows.Close(); err != nil {
		return nil, err
	}
	return b, nil
}

func readResultSet(rows driver.Rows) (resultSet, error) {
	set := resultSet{columns: rows.Columns()}
	set.types = readColumnTypes(rows, len(set.columns))

	for {
		dest := make([]driver.Value, len(set.columns))
		err := rows.Next(dest)
		if errors.Is(err, io.EOF) {
			return set, nil
		}
		if err != nil {
			return set, err
		}

		// Drivers may reuse byte buffers on the next call to Next.
		for i, v := range dest {
			if b, ok := v.([]byte); ok {
				dest[i] = append([]byte(nil), b...)
			}
		}
		set.rows = append(set.rows, dest)
	}
}

func readColumnTypes(rows driver.Rows, n int) []columnType {
	types := make([]columnType, n)
	for i := range types {
		ct := &types[i]
		ct.scanType = anyType

		if r, ok := rows.(driver.RowsColumnTypeDatabaseTypeName); ok {
			ct.databaseTypeName = r.ColumnTypeDatabaseTypeName(i)
		}
		if r, ok := rows.(driver.RowsColumnTypeScanType); ok {
			ct.scanType = r.ColumnTypeScanType(i)
		}
		if r, ok := rows.(driver.RowsColumnTypeNullable); ok {
			ct.nullable, ct.hasNullable = r.ColumnTypeNullable(i)
		}
		if r, ok := rows.(driver.RowsColumnTypeLength); ok {
			ct.length, ct.hasLength = r.ColumnTypeLength(i)
		}
		if r, ok := rows.(driver.RowsColumnTypePrecisionScale); ok {
			ct.precision, ct.scale, ct.hasPrecisionScale = r.ColumnTypePrecisionScale(i)
		}
	}
	return types
}

func (r *bufferedRows) current() *resultSet {
	return &r.sets[r.set]
}

// Columns implements driver.Rows.
func (r *bufferedRows) Columns() []string {
	return r.current().columns
}

// Close implements driver.Rows.
func (r *bufferedRows) Close() error {
	r.set = len(r.sets) - 1
	r.pos = len(r.current().rows)
	return nil
}

// Next implements driver.Rows.
func (r *bufferedRows) Next(dest []driver.Value) error {
	set := r.current()
	if r.pos >= len(set.rows) {
		return io.EOF
	}
	copy(dest, set.rows[r.pos])
	r.pos++
	return nil
}

// HasNextResultSet implements driver.RowsNextResultSet.
func (r *bufferedRows) HasNextResultSet() bool {
	return r.set+1 < len(r.sets)
}

// NextResultSet implements driver.RowsNextResultSet.
func (r *bufferedRows) NextResultSet() error {
	if !r.HasNextResultSet() {
		return io.EOF
	}
	r.set++
	r.pos = 0
	return nil
}

// ColumnTypeDatabaseTypeName implements driver.RowsColumnTypeDatabaseTypeName.
func (r *bufferedRows) ColumnTypeDatabaseTypeName(index int) string {
	return r.current().types[index].databaseTypeName
}

// ColumnTypeScanType implements driver.RowsColumnTypeScanType.
func (r *bufferedRows) ColumnTypeScanType(index int) reflect.Type {
	return r.current().types[index].scanType
}

// ColumnTypeNullable implements driver.RowsColumnTypeNullable.
func (r *bufferedRows) ColumnTypeNullable(index int) (nullable, ok bool) {
	ct := r.current().types[index]
	return ct.nullable, ct.hasNullable
}

// ColumnTypeLength implements driver.RowsColumnTypeLength.
func (r *bufferedRows) ColumnTypeLength(index int) (length int64, ok bool) {
	ct := r.current().types[index]
	return ct.length, ct.hasLength
}

// ColumnTypePrecisionScale implements driver.RowsColumnTypePrecisionScale.
func (r *bufferedRows) ColumnTypePrecisionScale(index int) (precision, scale int64, ok bool) {
	ct := r.current().types[index]
	return ct.precision, ct.scale, ct.hasPrecisionScale
}
