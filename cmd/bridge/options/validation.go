package options

import (
	"fmt"
)

func Validate(o *Options) []error {
	var errs []error
	if err := o.BaseOptions.ValidateAndApply(); err != nil {
		errs = append(errs, err)
	}
	if len(o.ErpURL) == 0 {
		errs = append(errs, fmt.Errorf("erp-url is required"))
	}

	return errs
}
