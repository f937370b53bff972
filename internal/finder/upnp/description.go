package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
)

const avTransportSchema = "urn:schemas-upnp-org:service:AVTransport:1"

// deviceDescription is the subset of a UPnP device description document
// this package cares about: the friendly name shown to users and the
// AVTransport service's control and event-subscription URLs.
type deviceDescription struct {
	FriendlyName  string
	ControlURL    string
	EventSubURL   string
}

type descriptionXML struct {
	Device struct {
		FriendlyName string `xml:"friendlyName"`
		ServiceList  struct {
			Services []struct {
				ServiceType string `xml:"serviceType"`
				ControlURL  string `xml:"controlURL"`
				EventSubURL string `xml:"eventSubURL"`
			} `xml:"service"`
		} `xml:"serviceList"`
	} `xml:"device"`
}

// fetchDescription downloads and parses the device description document at
// location, resolving the AVTransport service's relative URLs against it.
func fetchDescription(ctx context.Context, location string) (deviceDescription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return deviceDescription{}, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return deviceDescription{}, fmt.Errorf("upnp: fetch description: %w", err)
	}
	defer resp.Body.Close()

	var doc descriptionXML
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return deviceDescription{}, fmt.Errorf("upnp: parse description: %w", err)
	}

	base, err := url.Parse(location)
	if err != nil {
		return deviceDescription{}, fmt.Errorf("upnp: parse location: %w", err)
	}

	for _, svc := range doc.Device.ServiceList.Services {
		if svc.ServiceType != avTransportSchema {
			continue
		}

		control, err := base.Parse(svc.ControlURL)
		if err != nil {
			return deviceDescription{}, fmt.Errorf("upnp: resolve control url: %w", err)
		}
		eventSub, err := base.Parse(svc.EventSubURL)
		if err != nil {
			return deviceDescription{}, fmt.Errorf("upnp: resolve event sub url: %w", err)
		}

		return deviceDescription{
			FriendlyName: doc.Device.FriendlyName,
			ControlURL:   control.String(),
			EventSubURL:  eventSub.String(),
		}, nil
	}

	return deviceDescription{}, fmt.Errorf("upnp: device at %s has no AVTransport service", location)
}
