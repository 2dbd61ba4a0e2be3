package handler

import (
	"fmt"

	"github.com/go-orz/orz"
	"github.com/spf13/cast"
)

func orzOK() orz.Map {
	return orz.Map{
		"code":    200,
		"message": "ok",
	}
}

func parsePositiveInt(s string) (int, error) {
	n := cast.ToInt(s)
	if n <= 0 {
		return 0, fmt.Errorf("not a positive integer: %s", s)
	}
	return n, nil
}
