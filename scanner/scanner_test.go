package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/soilsense/internal/device"
	"github.com/srg/soilsense/internal/testutils"
	"github.com/srg/soilsense/scanner"
	suitelib "github.com/stretchr/testify/suite"
)

type ScannerTestSuite struct {
	suitelib.Suite

	helper *testutils.TestHelper

	adv1, adv2, adv3 device.Advertisement

	savedFactory func() (device.Scanner, error)
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())

	suite.adv1 = testutils.NewAdvertisementBuilder().
		WithAddress("AA:BB:CC:DD:EE:FF").
		WithName("SoilSense").
		WithRSSI(-45).
		WithServices("181A").
		WithTxPower(11).
		Build()

	suite.adv2 = testutils.NewAdvertisementBuilder().
		WithAddress("11:22:33:44:55:66").
		WithName("Kitchen Thermometer").
		WithRSSI(-67).
		WithServices("1809").
		Build()

	suite.adv3 = testutils.NewAdvertisementBuilder().
		WithAddress("99:88:77:66:55:44").
		WithName("SoilSense").
		WithRSSI(-80).
		WithServices("181A").
		Build()

	suite.savedFactory = scanner.ScannerFactory
	suite.useAdvertisements(suite.adv1, suite.adv2, suite.adv3)
}

func (suite *ScannerTestSuite) TearDownTest() {
	scanner.ScannerFactory = suite.savedFactory
}

func (suite *ScannerTestSuite) useAdvertisements(advs ...device.Advertisement) {
	scanner.ScannerFactory = func() (device.Scanner, error) {
		return &testutils.FakeScanner{Advertisements: advs}, nil
	}
}

func (suite *ScannerTestSuite) scanOnce(opts *scanner.ScanOptions) map[string]device.DeviceInfo {
	s, err := scanner.NewScanner(suite.helper.Logger)
	suite.Require().NoError(err)

	if opts == nil {
		opts = scanner.DefaultScanOptions()
	}
	opts.Duration = 50 * time.Millisecond

	devices, err := s.Scan(context.Background(), opts, nil)
	suite.Require().NoError(err)
	return devices
}

// GOAL: Verify a plain scan surfaces every advertising device keyed by
// address.
func (suite *ScannerTestSuite) TestScanCollectsAllDevices() {
	devices := suite.scanOnce(nil)

	suite.Len(devices, 3)
	suite.Contains(devices, "AA:BB:CC:DD:EE:FF")
	suite.Contains(devices, "11:22:33:44:55:66")

	probe := devices["AA:BB:CC:DD:EE:FF"]
	suite.Equal("SoilSense", probe.Name())
	suite.Equal(-45, probe.RSSI())
	suite.Require().NotNil(probe.TxPower())
	suite.Equal(11, *probe.TxPower())
	suite.Contains(probe.AdvertisedServices(), "181a")
}

// GOAL: Verify the name filter keeps only soil probes.
func (suite *ScannerTestSuite) TestScanNameFilter() {
	opts := scanner.DefaultScanOptions()
	opts.NameFilter = "SoilSense"

	devices := suite.scanOnce(opts)

	suite.Len(devices, 2)
	suite.NotContains(devices, "11:22:33:44:55:66")
}

// GOAL: Verify allow and block lists apply by address.
func (suite *ScannerTestSuite) TestScanAllowAndBlockLists() {
	suite.Run("block list removes a device", func() {
		opts := scanner.DefaultScanOptions()
		opts.BlockList = []string{"99:88:77:66:55:44"}

		devices := suite.scanOnce(opts)
		suite.Len(devices, 2)
		suite.NotContains(devices, "99:88:77:66:55:44")
	})

	suite.Run("allow list keeps only listed devices", func() {
		opts := scanner.DefaultScanOptions()
		opts.AllowList = []string{"AA:BB:CC:DD:EE:FF"}

		devices := suite.scanOnce(opts)
		suite.Len(devices, 1)
		suite.Contains(devices, "AA:BB:CC:DD:EE:FF")
	})
}

// GOAL: Verify repeated advertisements update the tracked device instead of
// duplicating it, and that events distinguish new from updated.
func (suite *ScannerTestSuite) TestRepeatedAdvertisementUpdates() {
	update := testutils.NewAdvertisementBuilder().
		WithAddress("AA:BB:CC:DD:EE:FF").
		WithName("SoilSense").
		WithRSSI(-52).
		Build()
	suite.useAdvertisements(suite.adv1, update)

	s, err := scanner.NewScanner(suite.helper.Logger)
	suite.Require().NoError(err)

	opts := scanner.DefaultScanOptions()
	opts.Duration = 50 * time.Millisecond
	devices, err := s.Scan(context.Background(), opts, nil)
	suite.Require().NoError(err)

	suite.Len(devices, 1)
	suite.Equal(-52, devices["AA:BB:CC:DD:EE:FF"].RSSI())

	var types []scanner.DeviceEventType
	for len(types) < 2 {
		select {
		case ev := <-s.Events():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			suite.FailNow("timed out waiting for device events")
		}
	}
	suite.Equal([]scanner.DeviceEventType{scanner.EventNew, scanner.EventUpdated}, types)

	// Both events made it through without the ring dropping any.
	m := s.EventMetrics()
	suite.Equal(int64(2), m.Written)
	suite.Equal(int64(0), m.Overwritten)
}

// GOAL: Verify FindByName returns the first matching probe and reports a
// clear error when nothing matches in time.
func (suite *ScannerTestSuite) TestFindByName() {
	suite.Run("finds a matching probe", func() {
		s, err := scanner.NewScanner(suite.helper.Logger)
		suite.Require().NoError(err)

		dev, err := s.FindByName(context.Background(), "SoilSense", time.Second)
		suite.Require().NoError(err)
		suite.Equal("SoilSense", dev.Name())
		suite.Equal("AA:BB:CC:DD:EE:FF", dev.Address())
	})

	suite.Run("times out when no probe matches", func() {
		suite.useAdvertisements(suite.adv2)

		s, err := scanner.NewScanner(suite.helper.Logger)
		suite.Require().NoError(err)

		_, err = s.FindByName(context.Background(), "SoilSense", 50*time.Millisecond)
		suite.Require().Error(err)
		suite.Contains(err.Error(), "no device named")
	})

	suite.Run("rejects empty name", func() {
		s, err := scanner.NewScanner(suite.helper.Logger)
		suite.Require().NoError(err)

		_, err = s.FindByName(context.Background(), "", time.Second)
		suite.Error(err)
	})
}

// GOAL: Verify adapter failures surface instead of returning an empty result.
func (suite *ScannerTestSuite) TestScanAdapterFailure() {
	scanner.ScannerFactory = func() (device.Scanner, error) {
		return &testutils.FakeScanner{ScanErr: errors.New("hci device busy")}, nil
	}

	s, err := scanner.NewScanner(suite.helper.Logger)
	suite.Require().NoError(err)

	opts := scanner.DefaultScanOptions()
	opts.Duration = 50 * time.Millisecond
	_, err = s.Scan(context.Background(), opts, nil)
	suite.Require().Error(err)
	suite.Contains(err.Error(), "scan failed")
}

func TestScannerTestSuite(t *testing.T) {
	suitelib.Run(t, new(ScannerTestSuite))
}
