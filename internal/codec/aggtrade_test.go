package codec

import "testing"

func validFrame() []byte {
	return []byte(`{"e":"aggTrade","E":1700000000123,"a":5000,"p":"27123.45","q":"0.0125","T":1700000000100,"m":true}`)
}

func TestDecodeAggTradeValidFrame(t *testing.T) {
	evt, err := DecodeAggTrade(validFrame())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.AggregateTradeID != 5000 || evt.Price != 27123.45 || evt.Quantity != 0.0125 || !evt.IsBuyerMaker {
		t.Fatalf("unexpected decode: %+v", evt)
	}
	if evt.EventTimeMs != 1700000000123 || evt.TradeTimeMs != 1700000000100 {
		t.Fatalf("unexpected timestamps: %+v", evt)
	}
}

func TestDecodeAggTradeRejectsWrongEventType(t *testing.T) {
	frame := []byte(`{"e":"trade","E":1,"a":1,"p":"1","q":"1","T":1,"m":false}`)
	if _, err := DecodeAggTrade(frame); err == nil {
		t.Fatalf("expected error for wrong event type")
	}
}

func TestDecodeAggTradeRejectsMalformedJSON(t *testing.T) {
	if _, err := DecodeAggTrade([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestDecodeAggTradeRejectsNonNumericPrice(t *testing.T) {
	frame := []byte(`{"e":"aggTrade","E":1,"a":1,"p":"abc","q":"1","T":1,"m":false}`)
	if _, err := DecodeAggTrade(frame); err == nil {
		t.Fatalf("expected error for non-numeric price")
	}
}

func TestDecodeAggTradeRejectsNegativeQuantity(t *testing.T) {
	frame := []byte(`{"e":"aggTrade","E":1,"a":1,"p":"1","q":"-1","T":1,"m":false}`)
	if _, err := DecodeAggTrade(frame); err == nil {
		t.Fatalf("expected error for negative quantity")
	}
}

func TestDecodeAggTradeRejectsNaN(t *testing.T) {
	frame := []byte(`{"e":"aggTrade","E":1,"a":1,"p":"NaN","q":"1","T":1,"m":false}`)
	if _, err := DecodeAggTrade(frame); err == nil {
		t.Fatalf("expected error for NaN price")
	}
}
