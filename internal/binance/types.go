package binance

import (
	"bytes"
	"fmt"
	"strconv"
)

// apiFloat decodes the string-encoded decimals Binance uses for every
// numeric field. Bare JSON numbers are accepted too.
type apiFloat float64

func (f *apiFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", data, err)
	}
	*f = apiFloat(v)
	return nil
}

type spotTickerResponse struct {
	Symbol             string   `json:"symbol"`
	LastPrice          apiFloat `json:"lastPrice"`
	PriceChangePercent apiFloat `json:"priceChangePercent"`
	QuoteVolume        apiFloat `json:"quoteVolume"`
}

type perpTickerResponse struct {
	Symbol             string   `json:"symbol"`
	LastPrice          apiFloat `json:"lastPrice"`
	PriceChangePercent apiFloat `json:"priceChangePercent"`
	QuoteVolume        apiFloat `json:"quoteVolume"`
}

type premiumIndexResponse struct {
	Symbol          string   `json:"symbol"`
	MarkPrice       apiFloat `json:"markPrice"`
	IndexPrice      apiFloat `json:"indexPrice"`
	LastFundingRate apiFloat `json:"lastFundingRate"`
	NextFundingTime int64    `json:"nextFundingTime"`
}

type openInterestResponse struct {
	Symbol       string   `json:"symbol"`
	OpenInterest apiFloat `json:"openInterest"`
	Time         int64    `json:"time"`
}

type fundingRateEntry struct {
	Symbol      string   `json:"symbol"`
	FundingRate apiFloat `json:"fundingRate"`
	FundingTime int64    `json:"fundingTime"`
}

type constituentsResponse struct {
	Symbol       string `json:"symbol"`
	Time         int64  `json:"time"`
	Constituents []struct {
		Exchange string   `json:"exchange"`
		Symbol   string   `json:"symbol"`
		Weight   apiFloat `json:"weight"`
	} `json:"constituents"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
