package refresher

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alibaba/proxima-sub000/internal/binlog/event"
)

func TestColumnInfoFromType(t *testing.T) {
	cases := []struct {
		columnType string
		wantType   byte
		wantMeta   uint16
	}{
		{"int", wireLong, 0},
		{"bigint", wireLongLong, 0},
		{"float", wireFloat, 0},
		{"double", wireDouble, 0},
		{"varchar(255)", wireVarString, 255},
		{"json", wireJSON, 4},
		{"text", wireBlob, 2},
	}
	for _, c := range cases {
		got := columnInfoFromType(c.columnType, true, sql.NullInt64{Int64: int64(c.wantMeta), Valid: true}, sql.NullInt64{}, sql.NullInt64{}, sql.NullInt64{})
		assert.Equal(t, c.wantType, got.Type, c.columnType)
		assert.True(t, got.Nullable)
	}
}

func TestColumnInfoFromTypeDecimal(t *testing.T) {
	got := columnInfoFromType("decimal(10,2)", false,
		sql.NullInt64{}, sql.NullInt64{Int64: 10, Valid: true}, sql.NullInt64{Int64: 2, Valid: true}, sql.NullInt64{})
	assert.Equal(t, byte(wireNewDecimal), got.Type)
	assert.Equal(t, uint16(10<<8|2), got.Meta)
	assert.False(t, got.Nullable)
}

func TestCompatibleEmptyExpectedAlwaysTrue(t *testing.T) {
	r := New(nil, nil)
	assert.True(t, r.compatible([]event.ColumnInfo{{Type: wireLong}}))
}

func TestCompatibleDetectsLengthMismatch(t *testing.T) {
	r := New(nil, []event.ColumnInfo{{Type: wireLong}, {Type: wireVarString}})
	assert.False(t, r.compatible([]event.ColumnInfo{{Type: wireLong}}))
}

func TestCompatibleDetectsTypeClassChange(t *testing.T) {
	r := New(nil, []event.ColumnInfo{{Type: wireLong}})
	assert.False(t, r.compatible([]event.ColumnInfo{{Type: wireVarString}}))
}

func TestCompatibleToleratesSameClassDifferentWidth(t *testing.T) {
	r := New(nil, []event.ColumnInfo{{Type: wireLong}})
	assert.True(t, r.compatible([]event.ColumnInfo{{Type: wireLongLong}}))
}

func TestTypeClass(t *testing.T) {
	assert.Equal(t, typeClassInt, typeClass(wireTiny))
	assert.Equal(t, typeClassFloat, typeClass(wireDouble))
	assert.Equal(t, typeClassString, typeClass(wireVarString))
	assert.Equal(t, typeClassTemporal, typeClass(wireDatetime2))
	assert.Equal(t, typeClassDecimal, typeClass(wireNewDecimal))
	assert.Equal(t, typeClassBlob, typeClass(wireJSON))
	assert.Equal(t, typeClassUnknown, typeClass(0))
}
