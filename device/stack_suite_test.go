package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/gattlink/device"
)

const testDeviceID = "AA:BB:CC:DD:EE:FF"

// StackTestSuite runs the public API against a simulated backend: every
// operation goes through the real lock/notify plumbing, with completions
// delivered from backend goroutines the way a platform adapter would.
type StackTestSuite struct {
	suite.Suite

	backend *simBackend
	stack   *device.Stack
	dev     *device.Device
}

func (suite *StackTestSuite) SetupTest() {
	suite.backend = newSimBackend().
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{85}).
		WithService("180D").
		WithCharacteristic("2A37", "notify", []byte{0, 75}).
		WithCharacteristic("2A38", "read", []byte{1}).
		WithCharacteristic("2A39", "write", []byte{}).
		WithDescriptor("2902", []byte{0, 0})

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	suite.stack = device.NewStack(suite.backend, device.Options{
		OperationTimeout: 250 * time.Millisecond,
	}, logger)
	suite.backend.attach(suite.stack)

	dev, err := suite.stack.Connected(testDeviceID)
	suite.Require().NoError(err, "MUST register the connection")
	suite.dev = dev

	_, err = dev.DiscoverServices(context.Background())
	suite.Require().NoError(err, "MUST discover services")
}

func (suite *StackTestSuite) TearDownTest() {
	suite.stack.Disconnected(testDeviceID)
}

func (suite *StackTestSuite) TestDiscoverServices() {
	// GOAL: Verify discovery populates the resource tree in discovery order
	//
	// TEST SCENARIO: Discover services → list services → UUIDs, primary flag
	// and SIG names match the simulated peripheral

	services, err := suite.dev.Services(context.Background())
	suite.Require().NoError(err, "MUST list services")
	suite.Require().Len(services, 2, "MUST see both services")

	suite.Assert().Equal("180f", services[0].UUID(), "first service MUST be 180f (discovery order)")
	suite.Assert().Equal("180d", services[1].UUID(), "second service MUST be 180d")

	primary, err := services[1].IsPrimary()
	suite.Require().NoError(err)
	suite.Assert().True(primary, "simulated services are primary")

	name, err := services[1].KnownName()
	suite.Require().NoError(err)
	suite.Assert().Equal("Heart Rate", name, "KnownName MUST come from the SIG tables")
}

func (suite *StackTestSuite) TestCharacteristicRead() {
	suite.Run("success with data", func() {
		char := suite.dev.Service("180f").Characteristic("2a19")

		data, err := char.Read(context.Background())
		suite.Require().NoError(err, "MUST read successfully")
		suite.Assert().Equal([]byte{85}, data, "data MUST match the simulated value")
	})

	suite.Run("cached value after read", func() {
		char := suite.dev.Service("180f").Characteristic("2a19")

		_, err := char.Read(context.Background())
		suite.Require().NoError(err)

		value, err := char.Value()
		suite.Require().NoError(err, "Value MUST be available after a read")
		suite.Assert().Equal([]byte{85}, value)
	})

	suite.Run("value before any read", func() {
		char := suite.dev.Service("180d").Characteristic("2a38")

		_, err := char.Value()
		suite.Assert().ErrorIs(err, device.ErrNotReady, "Value before Read MUST fail with NotReady")
	})

	suite.Run("unknown characteristic", func() {
		char := suite.dev.Service("180f").Characteristic("ffff")

		_, err := char.Read(context.Background())
		suite.Assert().ErrorIs(err, device.ErrServiceChanged,
			"a miss on a live connection MUST classify as service-changed")
	})

	suite.Run("completion never arrives", func() {
		// GOAL: Verify a vanished callback surfaces as a typed error, not a hang
		//
		// TEST SCENARIO: Drop the read completion → Read times out within the
		// operation timeout → connection is alive so the miss is ServiceChanged

		suite.backend.dropCompletionsFor("180d", "2a38")
		char := suite.dev.Service("180d").Characteristic("2a38")

		start := time.Now()
		_, err := char.Read(context.Background())
		suite.Assert().ErrorIs(err, device.ErrServiceChanged)
		suite.Assert().Less(time.Since(start), 2*time.Second, "MUST give up at the operation timeout")
	})
}

func (suite *StackTestSuite) TestCharacteristicWrite() {
	suite.Run("acknowledged write", func() {
		char := suite.dev.Service("180d").Characteristic("2a39")

		err := char.Write(context.Background(), []byte{0x01})
		suite.Require().NoError(err, "MUST write successfully")
		suite.Assert().Equal([][]byte{{0x01}}, suite.backend.writtenValues("180d", "2a39"),
			"backend MUST see the written value")
	})

	suite.Run("write without response under the MTU limit", func() {
		char := suite.dev.Service("180d").Characteristic("2a39")

		maxLen, err := char.MaxWriteLen()
		suite.Require().NoError(err)
		suite.Assert().Equal(18, maxLen, "default MTU 23 leaves 18 payload bytes")

		err = char.WriteWithoutResponse(context.Background(), make([]byte, maxLen))
		suite.Assert().NoError(err)
	})

	suite.Run("write without response over the MTU limit", func() {
		char := suite.dev.Service("180d").Characteristic("2a39")

		err := char.WriteWithoutResponse(context.Background(), make([]byte, 19))
		suite.Assert().ErrorIs(err, device.ErrInvalidParameter,
			"an oversized packet MUST be rejected before reaching the backend")
	})

	suite.Run("MTU change raises the limit", func() {
		suite.stack.MTUChanged(testDeviceID, 185)

		char := suite.dev.Service("180d").Characteristic("2a39")
		maxLen, err := char.MaxWriteLen()
		suite.Require().NoError(err)
		suite.Assert().Equal(180, maxLen, "MaxWriteLen MUST follow the negotiated MTU")

		err = char.WriteWithoutResponse(context.Background(), make([]byte, 100))
		suite.Assert().NoError(err)
	})
}

func (suite *StackTestSuite) TestNotifications() {
	// GOAL: Verify the subscribe/notify lifecycle end to end
	//
	// TEST SCENARIO: Subscribe → backend enables notifications → pushed
	// values arrive in order → closing the last stream disables notifications

	char := suite.dev.Service("180d").Characteristic("2a37")

	stream, err := char.Notify(context.Background())
	suite.Require().NoError(err, "MUST subscribe")
	suite.Assert().True(suite.backend.isNotifying("180d", "2a37"),
		"first subscriber MUST enable notifications on the device")

	notifying, err := char.IsNotifying()
	suite.Require().NoError(err)
	suite.Assert().True(notifying)

	suite.backend.pushNotification(testDeviceID, "180d", "2a37", []byte{0, 80})
	suite.backend.pushNotification(testDeviceID, "180d", "2a37", []byte{0, 81})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, ok := stream.Next(ctx)
	suite.Require().True(ok, "MUST receive the first value")
	suite.Assert().Equal([]byte{0, 80}, first)

	second, ok := stream.Next(ctx)
	suite.Require().True(ok, "MUST receive the second value")
	suite.Assert().Equal([]byte{0, 81}, second)

	stream.Close()
	suite.Assert().Eventually(func() bool {
		return !suite.backend.isNotifying("180d", "2a37")
	}, time.Second, 10*time.Millisecond, "last subscriber MUST disable notifications")
}

func (suite *StackTestSuite) TestNotifyUnsupported() {
	// GOAL: Verify subscribing to a read-only characteristic is rejected
	//
	// TEST SCENARIO: Notify on a characteristic without notify/indicate
	// properties → ErrNotSupported, backend never asked to enable

	char := suite.dev.Service("180d").Characteristic("2a38")

	_, err := char.Notify(context.Background())
	suite.Require().ErrorIs(err, device.ErrNotSupported,
		"MUST reject notify on a characteristic that cannot notify")
	suite.Assert().False(suite.backend.isNotifying("180d", "2a38"))
}

func (suite *StackTestSuite) TestNotificationsSharedSubscription() {
	// GOAL: Verify two subscribers share one device-side subscription
	//
	// TEST SCENARIO: Subscribe twice → one enable → both receive every value
	// → disable only after both streams close

	char := suite.dev.Service("180d").Characteristic("2a37")

	s1, err := char.Notify(context.Background())
	suite.Require().NoError(err)
	s2, err := char.Notify(context.Background())
	suite.Require().NoError(err)

	suite.backend.pushNotification(testDeviceID, "180d", "2a37", []byte{7})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v1, ok := s1.Next(ctx)
	suite.Require().True(ok)
	v2, ok := s2.Next(ctx)
	suite.Require().True(ok)
	suite.Assert().Equal([]byte{7}, v1)
	suite.Assert().Equal([]byte{7}, v2)

	s1.Close()
	suite.Assert().True(suite.backend.isNotifying("180d", "2a37"),
		"subscription MUST stay active while one stream remains")

	s2.Close()
	suite.Assert().Eventually(func() bool {
		return !suite.backend.isNotifying("180d", "2a37")
	}, time.Second, 10*time.Millisecond)
}

func (suite *StackTestSuite) TestNotificationsEndOnDisconnect() {
	// GOAL: Verify a disconnect terminates live notification streams
	//
	// TEST SCENARIO: Subscribe → report disconnect → stream ends instead of
	// blocking forever

	char := suite.dev.Service("180d").Characteristic("2a37")

	stream, err := char.Notify(context.Background())
	suite.Require().NoError(err)
	defer stream.Close()

	suite.stack.Disconnected(testDeviceID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, ok := stream.Next(ctx)
	suite.Assert().False(ok, "stream MUST end when the device disconnects")
}

func (suite *StackTestSuite) TestDisconnectReleasesPendingRead() {
	// GOAL: Verify teardown deterministically releases in-flight waiters
	//
	// TEST SCENARIO: Start a read whose completion never arrives → disconnect
	// mid-wait → the read resolves promptly with NotConnected

	suite.backend.dropCompletionsFor("180f", "2a19")
	char := suite.dev.Service("180f").Characteristic("2a19")

	done := make(chan error, 1)
	go func() {
		_, err := char.Read(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	suite.stack.Disconnected(testDeviceID)

	select {
	case err := <-done:
		suite.Assert().ErrorIs(err, device.ErrNotConnected,
			"a read cut off by disconnect MUST classify as not-connected")
	case <-time.After(2 * time.Second):
		suite.FailNow("read MUST not hang after disconnect")
	}
}

func (suite *StackTestSuite) TestRSSI() {
	rssi, err := suite.dev.RSSI(context.Background())
	suite.Require().NoError(err, "MUST read RSSI")
	suite.Assert().Equal(-42, rssi)
}

func (suite *StackTestSuite) TestDescriptors() {
	suite.Run("list and known name", func() {
		char := suite.dev.Service("180d").Characteristic("2a39")
		descs, err := char.Descriptors()
		suite.Require().NoError(err)
		suite.Require().Len(descs, 1, "MUST see the CCCD")
		suite.Assert().Equal("2902", descs[0].UUID())

		name, err := descs[0].KnownName()
		suite.Require().NoError(err)
		suite.Assert().Equal("Client Characteristic Configuration", name)
	})

	suite.Run("read and write", func() {
		desc := suite.dev.Service("180d").Characteristic("2a39").Descriptor("2902")

		data, err := desc.Read(context.Background())
		suite.Require().NoError(err, "MUST read descriptor")
		suite.Assert().Equal([]byte{0, 0}, data)

		err = desc.Write(context.Background(), []byte{1, 0})
		suite.Require().NoError(err, "MUST write descriptor")

		data, err = desc.Read(context.Background())
		suite.Require().NoError(err)
		suite.Assert().Equal([]byte{1, 0}, data, "descriptor MUST hold the written value")
	})

	suite.Run("cached value", func() {
		desc := suite.dev.Service("180d").Characteristic("2a39").Descriptor("2902")

		_, err := desc.Read(context.Background())
		suite.Require().NoError(err)

		value, err := desc.Value()
		suite.Require().NoError(err)
		suite.Assert().NotNil(value)
	})
}

func (suite *StackTestSuite) TestServicesChangedWatch() {
	// GOAL: Verify database change events reach watchers
	//
	// TEST SCENARIO: Watch → adapter reports invalidation → event arrives
	// carrying the device id

	watch, err := suite.dev.ServicesChangedWatch()
	suite.Require().NoError(err, "MUST subscribe to change events")
	defer watch.Close()

	suite.stack.ServicesInvalidated(testDeviceID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	event, ok := watch.Next(ctx)
	suite.Require().True(ok, "MUST receive the change event")
	suite.Assert().Equal(testDeviceID, event.DeviceID)
}

func (suite *StackTestSuite) TestHandleSurvivesRediscovery() {
	// GOAL: Verify handles re-resolve after a database change
	//
	// TEST SCENARIO: Use a handle → rediscover (old entries invalidated) →
	// the same handle works against the replacement entries

	char := suite.dev.Service("180f").Characteristic("2a19")

	_, err := char.Read(context.Background())
	suite.Require().NoError(err)

	_, err = suite.dev.DiscoverServices(context.Background())
	suite.Require().NoError(err, "re-discovery MUST succeed")

	data, err := char.Read(context.Background())
	suite.Require().NoError(err, "handle MUST re-resolve against the new entries")
	suite.Assert().Equal([]byte{85}, data)
}

func (suite *StackTestSuite) TestOperationsAfterDisconnect() {
	suite.stack.Disconnected(testDeviceID)

	suite.Assert().False(suite.dev.IsConnected())

	char := suite.dev.Service("180f").Characteristic("2a19")
	_, err := char.Read(context.Background())
	suite.Assert().ErrorIs(err, device.ErrNotConnected)

	_, err = suite.dev.RSSI(context.Background())
	suite.Assert().ErrorIs(err, device.ErrNotConnected)

	_, err = suite.dev.Services(context.Background())
	suite.Assert().ErrorIs(err, device.ErrNotConnected)
}

func (suite *StackTestSuite) TestReconnectAfterDisconnect() {
	// GOAL: Verify a device can reconnect after its entry was torn down
	//
	// TEST SCENARIO: Disconnect → Connected again → duplicate registration is
	// rejected while connected → operations work after reconnect

	_, err := suite.stack.Connected(testDeviceID)
	suite.Assert().ErrorIs(err, device.ErrAlreadyRegistered,
		"second registration while connected MUST be rejected")

	suite.stack.Disconnected(testDeviceID)

	dev, err := suite.stack.Connected(testDeviceID)
	suite.Require().NoError(err, "MUST reconnect after teardown")

	_, err = dev.DiscoverServices(context.Background())
	suite.Require().NoError(err)

	data, err := dev.Service("180f").Characteristic("2a19").Read(context.Background())
	suite.Require().NoError(err)
	suite.Assert().Equal([]byte{85}, data)
}

func TestStackSuite(t *testing.T) {
	suite.Run(t, new(StackTestSuite))
}
