package main

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/soypat/wcn3990/ce"
	"gopkg.in/yaml.v2"
)

// tableFile is the on-disk form of a copy engine configuration:
//
//	retry_delay_ms: 50
//	copy_engines:
//	  - src_nentries: 16
//	    src_sz_max: 2048
//	  - src_sz_max: 2048
//	    dest_nentries: 512
type tableFile struct {
	RetryDelayMS int       `yaml:"retry_delay_ms"`
	CopyEngines  []ce.Attr `yaml:"copy_engines"`
}

func loadTable(path string) ([]ce.Attr, time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return parseTable(data)
}

func parseTable(data []byte) ([]ce.Attr, time.Duration, error) {
	var tf tableFile
	err := yaml.UnmarshalStrict(data, &tf)
	if err != nil {
		return nil, 0, err
	}
	if len(tf.CopyEngines) == 0 {
		return nil, 0, errors.New("no copy engines in table")
	}
	if len(tf.CopyEngines) > ce.CountMax {
		return nil, 0, errors.New("table exceeds " + strconv.Itoa(ce.CountMax) + " copy engines")
	}
	for i, attr := range tf.CopyEngines {
		if err := attr.Validate(); err != nil {
			return nil, 0, errors.Join(errors.New("CE"+strconv.Itoa(i)), err)
		}
	}
	if tf.RetryDelayMS < 0 {
		return nil, 0, errors.New("negative retry delay")
	}
	return tf.CopyEngines, time.Duration(tf.RetryDelayMS) * time.Millisecond, nil
}
