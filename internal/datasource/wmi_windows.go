//go:build windows

package datasource

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

const sFalse = 0x00000001

// queryWMI runs the query through the SWbemLocator scripting object. COM
// calls must stay on one OS thread.
func queryWMI(ctx context.Context, host, query string) ([]wmiObject, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			return nil, fmt.Errorf("failed to initialize COM: %w", err)
		}
	}
	defer ole.CoUninitialize()

	locator, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return nil, fmt.Errorf("failed to create WMI locator: %w", err)
	}
	defer locator.Release()

	wmi, err := locator.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, err
	}
	defer wmi.Release()

	serviceRaw, err := oleutil.CallMethod(wmi, "ConnectServer", host, `root\cimv2`)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", host, err)
	}
	service := serviceRaw.ToIDispatch()
	defer func() { _ = serviceRaw.Clear() }()

	resultRaw, err := oleutil.CallMethod(service, "ExecQuery", query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	result := resultRaw.ToIDispatch()
	defer func() { _ = resultRaw.Clear() }()

	var objects []wmiObject
	err = oleutil.ForEach(result, func(item *ole.VARIANT) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		obj, err := readObject(item.ToIDispatch())
		if err != nil {
			return err
		}
		objects = append(objects, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func readObject(item *ole.IDispatch) (wmiObject, error) {
	propsRaw, err := oleutil.GetProperty(item, "Properties_")
	if err != nil {
		return nil, err
	}
	defer func() { _ = propsRaw.Clear() }()

	var obj wmiObject
	err = oleutil.ForEach(propsRaw.ToIDispatch(), func(p *ole.VARIANT) error {
		prop := p.ToIDispatch()

		name, err := oleutil.GetProperty(prop, "Name")
		if err != nil {
			return err
		}
		defer func() { _ = name.Clear() }()

		value, err := oleutil.GetProperty(prop, "Value")
		if err != nil {
			return err
		}
		defer func() { _ = value.Clear() }()

		obj = append(obj, wmiProperty{Name: name.ToString(), Value: value.Value()})
		return nil
	})
	return obj, err
}
